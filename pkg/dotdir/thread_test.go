package dotdir_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatrelay/pkg/dotdir"
)

var _ = Describe("dotdir.Manager thread", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dotdir-test-*")
		Expect(err).NotTo(HaveOccurred())
		m = dotdir.NewManager()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadThreadState", func() {
		It("returns nil when no thread has been saved", func() {
			state, err := m.LoadThreadState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(BeNil())
		})

		It("loads a saved thread", func() {
			data := `{"id":"t1","title":"hello","messages":[{"role":"user","content":"hello"},{"role":"assistant","content":"hi there"}]}`
			Expect(os.WriteFile(filepath.Join(tmpDir, "thread.json"), []byte(data), 0o600)).To(Succeed())

			state, err := m.LoadThreadState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.ID).To(Equal("t1"))
			Expect(state.Messages).To(Equal([]dotdir.ThreadMessage{
				{Role: "user", Content: "hello"},
				{Role: "assistant", Content: "hi there"},
			}))
		})

		It("returns error for invalid JSON", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "thread.json"), []byte("not json"), 0o600)).To(Succeed())

			state, err := m.LoadThreadState(tmpDir)
			Expect(err).To(HaveOccurred())
			Expect(state).To(BeNil())
		})
	})

	Describe("SaveThread", func() {
		It("returns error for nil state", func() {
			Expect(m.SaveThread(nil, tmpDir)).To(HaveOccurred())
		})

		It("overwrites an existing thread", func() {
			Expect(m.SaveThread(&dotdir.ThreadState{ID: "first"}, tmpDir)).To(Succeed())
			Expect(m.SaveThread(&dotdir.ThreadState{ID: "second"}, tmpDir)).To(Succeed())

			loaded, err := m.LoadThreadState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.ID).To(Equal("second"))
		})

		It("round trips every field", func() {
			state := &dotdir.ThreadState{
				ID:             "t-42",
				Title:          "Tell me about Go.",
				ConversationID: "conv-9",
				UpdatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
				Messages: []dotdir.ThreadMessage{
					{Role: "user", Content: "Tell me about Go."},
					{Role: "assistant", Content: "Go is a statically typed, compiled language."},
				},
			}

			Expect(m.SaveThread(state, tmpDir)).To(Succeed())

			loaded, err := m.LoadThreadState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(state))
		})
	})

	Describe("ClearThread", func() {
		It("removes the saved thread", func() {
			Expect(m.SaveThread(&dotdir.ThreadState{ID: "to-clear"}, tmpDir)).To(Succeed())
			Expect(m.ClearThread(tmpDir)).To(Succeed())

			loaded, err := m.LoadThreadState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(BeNil())
		})

		It("succeeds when nothing is saved", func() {
			Expect(m.ClearThread(tmpDir)).To(Succeed())
		})
	})
})

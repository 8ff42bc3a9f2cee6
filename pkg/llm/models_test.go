package llm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatrelay/pkg/llm"
)

var _ = Describe("NormalizeModels", func() {
	DescribeTable("flattens every accepted shape",
		func(body string, want []string) {
			got, err := llm.NormalizeModels([]byte(body))
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("bare strings", `["a","b"]`, []string{"a", "b"}),
		Entry("bare mixed", `["a",{"id":"b"},3,null,{"name":"c"}]`, []string{"a", "b"}),
		Entry("data objects", `{"object":"list","data":[{"id":"gpt"},{"id":7},"raw"]}`, []string{"gpt", "raw"}),
		Entry("models strings", `{"models":["x",{"id":"y"},"z"]}`, []string{"x", "z"}),
		Entry("data preferred over models", `{"data":["d"],"models":["m"]}`, []string{"d"}),
		Entry("null data falls through to models", `{"data":null,"models":["m"]}`, []string{"m"}),
		Entry("unknown object", `{"items":["a"]}`, []string{}),
		Entry("scalar", `"gpt"`, []string{}),
		Entry("null", `null`, []string{}),
		Entry("empty array", `[]`, []string{}),
		Entry("upper case data key", `{"DATA":[{"ID":"m1"}]}`, []string{}),
		Entry("capitalized models key", `{"Models":["m1"]}`, []string{}),
		Entry("capitalized id key", `{"data":[{"Id":"m1"},{"id":"m2"}]}`, []string{"m2"}),
	)

	It("classifies the shape", func() {
		list, err := llm.ParseModelList([]byte(`{"data":[]}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(BeAssignableToTypeOf(llm.DataModelList{}))
	})

	It("fails on invalid JSON", func() {
		_, err := llm.NormalizeModels([]byte(`{`))
		Expect(err).To(HaveOccurred())
	})
})

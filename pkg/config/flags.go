package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --target
// on both "chatrelay chat" and "chatrelay models").
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "server.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling the Add*Flag helpers and
// BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen        = "listen"
	FlagLogFile       = "log-file"
	FlagUpstream      = "upstream"
	FlagProject       = "project"
	FlagTimeout       = "timeout"
	FlagAccessToken   = "access-token"
	FlagDebugHTTP     = "debug-http"
	FlagDebugHTTPBody = "debug-http-body"
	FlagDebugUpstream = "debug-upstream"
	FlagEventStream   = "eventstream"
	FlagKafkaBrokers  = "kafka-brokers"
	FlagKafkaTopic    = "kafka-topic"
	FlagTarget        = "target"
	FlagModel         = "model"
	FlagAssistantID   = "assistant-id"
	FlagBufferLength  = "buffer-length"
	FlagHidden        = "hidden"
)

// Flags is the registry shared by every chatrelay command.
var Flags = FlagSet{
	FlagListen:        {Name: "listen", Shorthand: "l", ViperKey: "server.listen", Description: "Address for the relay to listen on"},
	FlagLogFile:       {Name: "log-file", ViperKey: "server.log_file", Description: "Also write JSON logs to this file"},
	FlagUpstream:      {Name: "upstream", Shorthand: "u", ViperKey: "upstream.base_url", Description: "Base URL of the upstream chat service"},
	FlagProject:       {Name: "project", ViperKey: "upstream.project", Description: "Project sent to the upstream chat service"},
	FlagTimeout:       {Name: "timeout", ViperKey: "upstream.timeout", Description: "Upstream timeout (e.g. 60s)"},
	FlagAccessToken:   {Name: "access-token", ViperKey: AccessTokenKey, Description: "Upstream access token (prefer CHATRELAY_UPSTREAM_ACCESS_TOKEN)"},
	FlagDebugHTTP:     {Name: "debug-http", ViperKey: "server.debug_http", Description: "Log every inbound HTTP request"},
	FlagDebugHTTPBody: {Name: "debug-http-body", ViperKey: "server.debug_http_body", Description: "Include request and response bodies in HTTP logs"},
	FlagDebugUpstream: {Name: "debug-upstream", ViperKey: "server.debug_upstream", Description: "Log upstream requests and responses"},
	FlagEventStream:   {Name: "eventstream", ViperKey: "eventstream.provider", Description: "Session event publisher (none, kafka)"},
	FlagKafkaBrokers:  {Name: "kafka-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers"},
	FlagKafkaTopic:    {Name: "kafka-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for session events"},
	FlagTarget:        {Name: "target", Shorthand: "t", ViperKey: "client.target", Description: "chatrelay server URL"},
	FlagModel:         {Name: "model", Shorthand: "m", ViperKey: "client.model", Description: "Model to chat with"},
	FlagAssistantID:   {Name: "assistant-id", ViperKey: "client.assistant_id", Description: "Assistant to chat with (instead of a model)"},
	FlagBufferLength:  {Name: "buffer-length", ViperKey: "client.buffer_length", Description: "Upstream stream buffer length hint"},
	FlagHidden:        {Name: "hidden", ViperKey: "client.hidden", Description: "Hide the conversation from the upstream history"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaults returns a viper instance holding only NewDefaultConfig values.
func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}

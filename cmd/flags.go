package cmd

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/SawyerHood/openai-html-stream/internal/config"
	"github.com/SawyerHood/openai-html-stream/internal/htmlstream"
)

// addRewriteFlags registers the flags shared by every command that runs the
// rewriter and binds them to the stream config section.
func addRewriteFlags(fs *pflag.FlagSet) {
	fs.String("inject", "", "markup to insert right after the opening <head> tag")
	fs.String("charset", "utf-8", "output charset (any WHATWG encoding label)")
}

// bindRewriteFlags binds the rewrite flags of the running command. Flags
// shared by several commands are bound at run time so that only the
// invoked command's values take effect.
func bindRewriteFlags(fs *pflag.FlagSet) {
	if f := fs.Lookup("inject"); f != nil {
		viper.BindPFlag("stream.inject_into_head", f)
	}
	if f := fs.Lookup("charset"); f != nil {
		viper.BindPFlag("stream.charset", f)
	}
}

func rewriteOptions(cfg *config.Config) []htmlstream.Option {
	return []htmlstream.Option{htmlstream.WithInjectIntoHead(cfg.Stream.InjectIntoHead)}
}

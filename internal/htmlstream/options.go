package htmlstream

// Option configures a Rewriter.
type Option func(*options)

type options struct {
	injectIntoHead string
}

// WithInjectIntoHead sets markup to insert right after the opening <head> tag.
// It is inserted at most once, and only if a <head> or <body> tag is found.
func WithInjectIntoHead(markup string) Option {
	return func(o *options) {
		o.injectIntoHead = markup
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

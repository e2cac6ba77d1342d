package provider

import (
	"context"
)

// Static always answers with the same text. It lets the service run
// locally without provider credentials.
type Static struct {
	reply string
}

func NewStatic(reply string) *Static {
	if reply == "" {
		reply = "ok"
	}
	return &Static{reply: reply}
}

func (s *Static) Name() string { return string(KindStatic) }

func (s *Static) Complete(ctx context.Context, req Request) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	if len(req.Messages) == 0 {
		return Reply{}, validate(req)
	}
	return Reply{Text: s.reply}, nil
}

var _ Completer = (*Static)(nil)

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/michaelbrown/dotbox/internal/tools"
)

var serverFlag string

// openSession connects to a running dotbox server when --server is set, or
// to an in-process tool server otherwise. The returned func releases it.
func openSession(ctx context.Context) (*tools.Client, func(), error) {
	if serverFlag != "" {
		c, err := tools.Dial(ctx, serverFlag)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil
	}

	a, err := newApp(true)
	if err != nil {
		return nil, nil, err
	}
	c, err := tools.Connect(ctx, a.toolset().NewServer(version))
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return c, func() {
		c.Close()
		a.Close()
	}, nil
}

// printToolError writes a failed envelope to stderr.
func printToolError(e *tools.ErrorBody) {
	fmt.Fprintf(os.Stderr, "\033[31merror (%s): %s\033[0m\n", e.Type, e.Message)
	for _, be := range e.BuildErrors {
		fmt.Fprintf(os.Stderr, "  %s\n", be)
	}
	if e.Details != "" && len(e.BuildErrors) == 0 {
		fmt.Fprintln(os.Stderr, strings.TrimRight(e.Details, "\n"))
	}
	for _, s := range e.Suggestions {
		fmt.Fprintf(os.Stderr, "  \033[90mhint: %s\033[0m\n", s)
	}
}

// dataString reads a string field from a decoded envelope payload.
func dataString(env *tools.Envelope, key string) string {
	m, _ := env.Data.(map[string]any)
	s, _ := m[key].(string)
	return s
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"toolbox/internal/elicitation"
)

// terminalElicitor answers elicitation requests on a terminal for the call
// command. An empty line declines; "cancel" or end of input cancels.
type terminalElicitor struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalElicitor(in io.Reader, out io.Writer) *terminalElicitor {
	return &terminalElicitor{in: bufio.NewReader(in), out: out}
}

func (t *terminalElicitor) Elicit(ctx context.Context, message string, schema map[string]any) (*elicitation.Response, error) {
	props, _ := schema["properties"].(map[string]any)
	fields := make([]string, 0, len(props))
	for name := range props {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, message)

	content := make(map[string]any, len(fields))
	for _, field := range fields {
		prop, _ := props[field].(map[string]any)
		values, labels := enumOf(prop)
		for i := range values {
			fmt.Fprintf(t.out, "  %d) %s\n", i+1, labels[i])
		}
		fmt.Fprintf(t.out, "%s (empty to decline, 'cancel' to cancel): ", promptLabel(field, prop))

		line, err := t.readLine(ctx)
		if err == io.EOF {
			return &elicitation.Response{Action: elicitation.ActionCancel}, nil
		}
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(line) {
		case "":
			return &elicitation.Response{Action: elicitation.ActionDecline}, nil
		case "cancel":
			return &elicitation.Response{Action: elicitation.ActionCancel}, nil
		}
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(values) {
			line = values[n-1]
		}
		content[field] = line
	}
	return &elicitation.Response{Action: elicitation.ActionAccept, Content: content}, nil
}

func (t *terminalElicitor) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := t.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- result{strings.TrimSpace(line), err}
	}()
	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func enumOf(prop map[string]any) (values, labels []string) {
	values = stringSlice(prop["enum"])
	labels = stringSlice(prop["enumNames"])
	if len(labels) != len(values) {
		labels = values
	}
	return values, labels
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			out = append(out, fmt.Sprint(e))
		}
		return out
	}
	return nil
}

func promptLabel(field string, prop map[string]any) string {
	if title, ok := prop["title"].(string); ok && title != "" {
		return title
	}
	return field
}

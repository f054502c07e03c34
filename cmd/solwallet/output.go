package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// compileFilters parses and compiles jq expressions once per invocation.
func compileFilters(filters []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return codes, nil
}

// toJQValue converts v into the plain maps and slices gojq operates on.
func toJQValue(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// runFilters pipes v through each filter in turn. Each filter sees every
// value the previous one emitted.
func runFilters(codes []*gojq.Code, v interface{}) ([]interface{}, error) {
	input, err := toJQValue(v)
	if err != nil {
		return nil, err
	}
	values := []interface{}{input}
	for _, code := range codes {
		var next []interface{}
		for _, in := range values {
			iter := code.Run(in)
			for {
				out, ok := iter.Next()
				if !ok {
					break
				}
				if err, isErr := out.(error); isErr {
					return nil, fmt.Errorf("jq: %w", err)
				}
				next = append(next, out)
			}
		}
		values = next
	}
	return values, nil
}

// matchesAll reports whether every filter yields a truthy first value for v.
func matchesAll(codes []*gojq.Code, v interface{}) bool {
	input, err := toJQValue(v)
	if err != nil {
		return false
	}
	for _, code := range codes {
		out, ok := code.Run(input).Next()
		if !ok {
			return false
		}
		if _, isErr := out.(error); isErr {
			return false
		}
		if !isTruthy(out) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// emit writes v as JSON when --json or --jq is set, otherwise calls human.
func emit(c *cli.Context, v interface{}, human func(w io.Writer)) error {
	w := c.App.Writer
	filters := c.StringSlice("jq")
	if len(filters) > 0 {
		codes, err := compileFilters(filters)
		if err != nil {
			return err
		}
		values, err := runFilters(codes, v)
		if err != nil {
			return err
		}
		for _, out := range values {
			if s, ok := out.(string); ok {
				fmt.Fprintln(w, s)
				continue
			}
			data, err := json.Marshal(out)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(data))
		}
		return nil
	}

	if c.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	human(w)
	return nil
}

package completion

import (
	"context"
	"errors"
)

// Mock is a scripted completion service for tests. Responses are returned in
// order; once exhausted, Err (or a default error) is returned.
type Mock struct {
	Responses []string
	Err       error

	Prompts []string
	next    int
}

func (m *Mock) Complete(_ context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)

	if m.next >= len(m.Responses) {
		if m.Err != nil {
			return "", m.Err
		}

		return "", errors.New("mock completion: no scripted response")
	}

	response := m.Responses[m.next]
	m.next++

	return response, nil
}

package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, Request{BudgetTokens: 1}.Validate())
	assert.Error(t, Request{BudgetTokens: 0}.Validate())
	assert.Error(t, Request{BudgetTokens: -10}.Validate())
}

func TestRequestSignature(t *testing.T) {
	base := Request{
		FilePath:     "src/a.go",
		Domain:       "backend",
		Project:      "api",
		Feature:      "auth",
		TaskType:     "refactor",
		BudgetTokens: 5000,
		AsOf:         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, base.Signature(), base.Signature())

	// Every field participates in the signature.
	fields := []func(Request) Request{
		func(r Request) Request { r.FilePath = "src/b.go"; return r },
		func(r Request) Request { r.Domain = "frontend"; return r },
		func(r Request) Request { r.Project = "web"; return r },
		func(r Request) Request { r.Feature = "billing"; return r },
		func(r Request) Request { r.TaskType = "review"; return r },
		func(r Request) Request { r.BudgetTokens = 4999; return r },
		func(r Request) Request { r.AsOf = r.AsOf.Add(time.Second); return r },
	}
	for i, mutate := range fields {
		changed := mutate(base)
		require.NotEqual(t, base.Signature(), changed.Signature(), "field %d", i)
	}
}

// Package invoke wraps every LLM call with bounded retry-with-feedback.
// Schema-invalid responses get a corrective prompt embedding the previous
// response and its violations; transport failures get exponential backoff.
// The two retry classes compose: each schema attempt carries its own
// transport budget.
package invoke

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/ShayCichocki/glassbox/internal/api"
	"github.com/ShayCichocki/glassbox/internal/validation"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// Completer is the LLM boundary the invoker drives. *api.Client satisfies
// it; tests substitute stubs.
type Completer interface {
	Complete(ctx context.Context, req api.Request) (*api.Response, error)
}

// Options tunes retry behavior for every call through one invoker.
type Options struct {
	// MaxAttempts bounds schema-validation attempts per call.
	MaxAttempts int
	// TransportRetries bounds resends per schema attempt.
	TransportRetries int
	// BackoffBase is the first backoff delay; it doubles per retry.
	BackoffBase time.Duration
	// Timeout applies per individual send.
	Timeout time.Duration
	// MaxTokens caps each response.
	MaxTokens int
	// RequestsPerMinute throttles send starts; 0 disables the limiter.
	RequestsPerMinute int
}

// Invoker sends prompts and validates responses until one parses or the
// attempt budget runs out.
type Invoker struct {
	client   Completer
	opts     Options
	limiter  *rateLimiter
	sleep    func(ctx context.Context, d time.Duration) error
	debugLog func(format string, args ...interface{})
}

// New creates an Invoker over the given completer.
func New(client Completer, opts Options) *Invoker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.TransportRetries < 0 {
		opts.TransportRetries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 5 * time.Second
	}

	inv := &Invoker{
		client:   client,
		opts:     opts,
		sleep:    sleepCtx,
		debugLog: func(format string, args ...interface{}) {},
	}
	if opts.RequestsPerMinute > 0 {
		inv.limiter = newRateLimiter(opts.RequestsPerMinute, time.Minute)
	}
	return inv
}

// SetDebugLog sets the debug logging function.
func (inv *Invoker) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		inv.debugLog = fn
	}
}

// Request is one supervised LLM call.
type Request struct {
	// System is the system prompt, optional.
	System string
	// Prompt is the task prompt for the first attempt.
	Prompt string
	// Tier selects the fast or deep model.
	Tier models.ModelTier
	// Schema validates each response.
	Schema validation.Schema
	// MaxAttempts overrides the invoker default when > 0.
	MaxAttempts int
}

// Invoke sends the prompt, validates the response, and resends with
// corrective feedback until the schema accepts or attempts run out.
// Returns the parsed structure on success; on exhaustion returns a
// *SchemaError carrying the last violation list, or a *TransportError if
// the service never answered.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (any, error) {
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = inv.opts.MaxAttempts
	}

	prompt := req.Prompt
	var lastRaw string
	var lastViolations []validation.Violation

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := inv.send(ctx, req.System, prompt, req.Tier)
		if err != nil {
			return nil, err
		}

		result := req.Schema.Validate(raw)
		if result.Valid {
			return result.Value, nil
		}

		lastRaw = raw
		lastViolations = result.Violations
		log.Printf("[invoke] %s attempt %d/%d rejected: %d violation(s)",
			req.Schema.Name, attempt, maxAttempts, len(result.Violations))
		inv.debugLog("[invoke] violations: %s", validation.FormatViolations(result.Violations))

		if attempt < maxAttempts {
			prompt = CorrectivePrompt(req.Prompt, req.Schema, raw, result.Violations)
		}
	}

	return nil, &SchemaError{
		Schema:       req.Schema.Name,
		Attempts:     maxAttempts,
		Violations:   lastViolations,
		LastResponse: lastRaw,
	}
}

// send performs one schema attempt: a bounded transport-retry loop with
// exponential backoff around a single completion.
func (inv *Invoker) send(ctx context.Context, system, prompt string, tier models.ModelTier) (string, error) {
	var lastErr error
	attempts := 0

	for try := 0; try <= inv.opts.TransportRetries; try++ {
		if inv.limiter != nil {
			if err := inv.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		attempts++
		callCtx := ctx
		var cancel context.CancelFunc
		if inv.opts.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, inv.opts.Timeout)
		}
		resp, err := inv.client.Complete(callCtx, api.Request{
			System:    system,
			Prompt:    prompt,
			Tier:      tier,
			MaxTokens: inv.opts.MaxTokens,
		})
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return resp.Text, nil
		}

		// The parent context going away is cancellation, not transport.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !api.Retryable(err) {
			return "", fmt.Errorf("llm call: %w", err)
		}

		lastErr = err
		if try < inv.opts.TransportRetries {
			delay := backoffDelay(inv.opts.BackoffBase, try)
			log.Printf("[invoke] transport error (status %d), retry %d/%d in %s",
				api.StatusCode(err), try+1, inv.opts.TransportRetries, delay)
			if err := inv.sleep(ctx, delay); err != nil {
				return "", err
			}
		}
	}

	return "", &TransportError{
		Attempts: attempts,
		Status:   api.StatusCode(lastErr),
		Err:      lastErr,
	}
}

// backoffDelay doubles the base per retry and adds up to 10% jitter.
func backoffDelay(base time.Duration, try int) time.Duration {
	delay := base << uint(try)
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const maxEmbeddedResponse = 6000

// CorrectivePrompt builds the follow-up prompt for a rejected response:
// the specific violations, the format contract, the previous response,
// and the original task.
func CorrectivePrompt(original string, schema validation.Schema, lastResponse string, violations []validation.Violation) string {
	embedded := lastResponse
	if len(embedded) > maxEmbeddedResponse {
		embedded = embedded[:maxEmbeddedResponse] + "\n[... truncated ...]"
	}

	var b strings.Builder
	b.WriteString("Your previous response could not be accepted.\n\n")
	b.WriteString("Problems found:\n")
	b.WriteString(validation.FormatViolations(violations))
	b.WriteString("\n\n")
	if schema.Instructions != "" {
		b.WriteString("Required format:\n")
		b.WriteString(schema.Instructions)
		b.WriteString("\n\n")
	}
	b.WriteString("Your previous response was:\n")
	b.WriteString(embedded)
	b.WriteString("\n\nThe original task follows. Respond again, fixing every problem listed above, and reply with only the requested format.\n\n")
	b.WriteString(original)
	return b.String()
}

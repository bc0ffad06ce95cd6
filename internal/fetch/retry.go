package fetch

import (
	"context"
	"math/rand/v2"
	"time"

	"ProductScout/internal/domain"
)

// RetryPolicy decides whether a failed fetch is attempted again. It holds no
// state and performs no I/O.
type RetryPolicy struct {
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	BaseTimeout   time.Duration
	TimeoutGrowth float64
	Profiles      int
}

// Attempt describes the fetch that just finished.
type Attempt struct {
	Number         int
	Status         domain.FetchStatus
	Profile        int
	Timeout        time.Duration
	TimeoutRetries int
}

// Decision is the outcome of RetryPolicy.Decide.
type Decision struct {
	Retry   bool
	Profile int
	Backoff time.Duration
	Timeout time.Duration
}

// DefaultRetryPolicy returns three retries with exponential backoff from one second.
func DefaultRetryPolicy(profiles int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		BaseBackoff:   time.Second,
		MaxBackoff:    30 * time.Second,
		BaseTimeout:   20 * time.Second,
		TimeoutGrowth: 2,
		Profiles:      profiles,
	}
}

// Decide maps (attempt, last status) to retry-with-profile-N or stop. jitter
// must lie in [0,1) and scales the random part of the backoff.
//
// Blocked and network failures are retried up to MaxRetries times, moving to
// the next profile each time. A timeout is retried once, on the same profile,
// with a longer deadline.
func (p RetryPolicy) Decide(a Attempt, jitter float64) Decision {
	stop := Decision{Profile: a.Profile, Timeout: a.Timeout}

	switch a.Status {
	case domain.FetchBlocked, domain.FetchNetworkError:
		used := a.Number - 1 - a.TimeoutRetries
		if used >= p.MaxRetries {
			return stop
		}
		return Decision{
			Retry:   true,
			Profile: p.nextProfile(a.Profile),
			Backoff: p.backoff(used+1, jitter),
			Timeout: a.Timeout,
		}
	case domain.FetchTimeout:
		if a.TimeoutRetries > 0 {
			return stop
		}
		base := a.Timeout
		if base <= 0 {
			base = p.BaseTimeout
		}
		growth := p.TimeoutGrowth
		if growth <= 1 {
			growth = 2
		}
		return Decision{
			Retry:   true,
			Profile: a.Profile,
			Backoff: p.backoff(1, jitter),
			Timeout: time.Duration(float64(base) * growth),
		}
	default:
		return stop
	}
}

func (p RetryPolicy) nextProfile(current int) int {
	if p.Profiles <= 1 {
		return current
	}
	return (current + 1) % p.Profiles
}

func (p RetryPolicy) backoff(retry int, jitter float64) time.Duration {
	if p.BaseBackoff <= 0 {
		return 0
	}
	d := p.BaseBackoff
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			d = p.MaxBackoff
			break
		}
	}
	if jitter < 0 || jitter >= 1 {
		jitter = 0
	}
	return d + time.Duration(jitter*float64(p.BaseBackoff))
}

// Do runs f under policy starting from profile and returns the last result.
// The caller's context bounds the whole sequence including backoff waits.
func Do(ctx context.Context, f Fetcher, policy RetryPolicy, req Request, profile int) domain.RawFetchResult {
	if policy.Profiles == 0 {
		policy.Profiles = f.Profiles()
	}
	attempt := Attempt{Profile: profile, Timeout: req.Timeout}
	for {
		req.Timeout = attempt.Timeout
		res := f.Fetch(ctx, req, attempt.Profile)
		attempt.Number++
		attempt.Status = res.Status
		res.Attempts = attempt.Number

		decision := policy.Decide(attempt, rand.Float64())
		if !decision.Retry || ctx.Err() != nil {
			return res
		}
		if res.Status == domain.FetchTimeout {
			attempt.TimeoutRetries++
		}
		attempt.Profile = decision.Profile
		attempt.Timeout = decision.Timeout

		if err := Sleep(ctx, decision.Backoff); err != nil {
			return res
		}
	}
}

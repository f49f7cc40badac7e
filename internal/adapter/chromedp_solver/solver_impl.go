package chromedp_solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/user/medcrawl/internal/repository"
	"go.uber.org/zap"
)

const userAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36`

// Polls the hidden reCAPTCHA response field until the human completes the
// challenge in the opened browser window.
const captchaPoll = `(() => {
	const el = document.querySelector('#g-recaptcha-response');
	return el && el.value ? el.value : false;
})()`

// Solver opens the board portal in a real browser and waits for a human to
// solve the reCAPTCHA. Implements repository.ChallengeSolver.
type Solver struct {
	portalURL    string
	headless     bool
	solveTimeout time.Duration
	logger       *zap.Logger
}

// New creates a new Solver. Headless only makes sense with an automated
// solving service injected at the browser level; interactive use wants a
// visible window.
func New(portalURL string, headless bool, solveTimeout time.Duration, logger *zap.Logger) *Solver {
	return &Solver{
		portalURL:    portalURL,
		headless:     headless,
		solveTimeout: solveTimeout,
		logger:       logger,
	}
}

// Solve blocks until the challenge is answered or the solve timeout fires.
// A timeout is reported as transient so the token manager can retry it
// under the same attempt bound as other captcha failures.
func (s *Solver) Solve(ctx context.Context) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, s.solveTimeout)
	defer cancelTimeout()

	s.logger.Info("opening board portal for captcha solving",
		zap.String("url", s.portalURL),
		zap.Duration("timeout", s.solveTimeout),
	)

	var token string
	err := chromedp.Run(taskCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Installed before any page script runs, on every navigation.
			_, err := page.AddScriptToEvaluateOnNewDocument(
				`Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`,
			).Do(ctx)
			return err
		}),
		chromedp.Navigate(s.portalURL),
		chromedp.Poll(captchaPoll, &token, chromedp.WithPollingInterval(500*time.Millisecond)),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: captcha not solved within %s", repository.ErrTransient, s.solveTimeout)
		}
		return "", fmt.Errorf("%w: captcha challenge page: %v", repository.ErrTransient, err)
	}

	s.logger.Info("captcha solved", zap.Int("token_length", len(token)))
	return token, nil
}

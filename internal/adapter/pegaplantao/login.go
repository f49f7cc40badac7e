package pegaplantao

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/medcrawl/internal/entity"
	"github.com/user/medcrawl/internal/repository"
	"go.uber.org/zap"
)

const loginPath = "/Login"

// ASP.NET WebForms post-back fields the login form requires.
var hiddenFields = []string{"__VIEWSTATE", "__VIEWSTATEGENERATOR", "__EVENTVALIDATION"}

// Login implements repository.LoginGateway. It loads the login form,
// replays its hidden post-back fields together with the configured
// credentials, and captures the session cookies of the authenticated
// response.
func (c *Client) Login(ctx context.Context) (*entity.Credential, error) {
	resp, err := c.http.R().SetContext(ctx).Get(loginPath)
	if err != nil {
		return nil, fmt.Errorf("%w: loading login form: %v", repository.ErrTransient, err)
	}
	if resp.StatusCode() >= 500 {
		return nil, fmt.Errorf("%w: loading login form: HTTP %d", repository.ErrTransient, resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing login form: %v", repository.ErrNonRetryable, err)
	}

	form := url.Values{}
	for _, name := range hiddenFields {
		val, ok := doc.Find(fmt.Sprintf("input[name=%q]", name)).Attr("value")
		if !ok {
			return nil, fmt.Errorf("%w: login form is missing %s", repository.ErrNonRetryable, name)
		}
		form.Set(name, val)
	}
	form.Set("ctl00$MainContent$LoginUser$UserName", c.email)
	form.Set("Password", c.password)
	form.Set("ctl00$MainContent$LoginUser$btnLogin", "Entrar")

	resp, err = c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormDataFromValues(form).
		Post(loginPath)
	if err != nil {
		return nil, fmt.Errorf("%w: submitting login: %v", repository.ErrTransient, err)
	}

	// A rejected login lands back on /Login after the redirect chain.
	final := resp.RawResponse.Request.URL
	if strings.Contains(final.Path, loginPath) {
		return nil, fmt.Errorf("%w: login rejected for %s", repository.ErrAuthExpired, c.email)
	}

	base, err := url.Parse(c.http.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	cookies := c.http.GetClient().Jar.Cookies(base)
	if len(cookies) == 0 {
		return nil, fmt.Errorf("%w: login produced no session cookies", repository.ErrAuthExpired)
	}

	pairs := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		pairs = append(pairs, ck.Name+"="+ck.Value)
	}

	now := time.Now()
	c.logger.Info("marketplace login succeeded",
		zap.String("landing", final.Path),
		zap.Int("cookies", len(cookies)),
	)
	return &entity.Credential{
		Source:      entity.SourcePegaPlantao,
		Token:       strings.Join(pairs, "; "),
		IssuedAt:    now,
		ExpiresAt:   now.Add(c.sessionTTL),
		ExpiryKnown: true,
	}, nil
}

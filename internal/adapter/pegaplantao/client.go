// Package pegaplantao crawls duty-shift postings from the marketplace's
// session-authenticated JSON API.
package pegaplantao

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/user/medcrawl/internal/entity"
	"github.com/user/medcrawl/internal/repository"
	"go.uber.org/zap"
)

const (
	shiftsPath = "/api/v1/shifts/forlist"

	userAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36`
)

// Client implements repository.SourceClient and repository.LoginGateway
// for the marketplace.
type Client struct {
	http       *resty.Client
	pageSize   int
	email      string
	password   string
	sessionTTL time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// New creates a new marketplace client.
func New(baseURL string, pageSize int, email, password string, timeout, sessionTTL time.Duration, logger *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "*/*").
		SetHeader("X-Requested-With", "XMLHttpRequest")

	return &Client{
		http:       http,
		pageSize:   pageSize,
		email:      email,
		password:   password,
		sessionTTL: sessionTTL,
		now:        time.Now,
		logger:     logger,
	}
}

// Source implements repository.SourceClient.
func (c *Client) Source() string { return entity.SourcePegaPlantao }

// Dimensions returns a single date-window dimension: today through the end
// of next month, the widest range the shift listing accepts.
func (c *Client) Dimensions(ctx context.Context) ([]entity.FetchDimension, error) {
	start, end := dateRange(c.now())
	return []entity.FetchDimension{{
		ID:    start + "|" + end,
		Label: fmt.Sprintf("shifts %s to %s", start, end),
	}}, nil
}

// shiftsRequest mirrors the listing payload the web client sends.
type shiftsRequest struct {
	ServiceStartDate      string   `json:"ServiceStartDate"`
	ServiceEndDate        string   `json:"ServiceEndDate"`
	ServiceStartTime      string   `json:"ServiceStartTime"`
	Page                  int      `json:"Page"`
	PageSize              int      `json:"PageSize"`
	SelectedProfessionals []string `json:"SelectedProfessionals"`
	SelectedSectors       []string `json:"SelectedSectors"`
	FilterType            []string `json:"FilterType"`
	ServiceTypeID         []string `json:"ServiceTypeId"`
	WeekDay               int      `json:"WeekDay"`
	WeekDays              []int    `json:"WeekDays"`
	ProfessionalToViewID  string   `json:"ProfessionalToViewId"`
}

type shiftsEnvelope struct {
	Services []json.RawMessage `json:"Services"`
}

// FetchPage fetches one page of the shift listing. The cursor is the
// 1-based page number; a page shorter than the page size is the last one.
func (c *Client) FetchPage(ctx context.Context, cred *entity.Credential, dim entity.FetchDimension, cursor string) (*entity.RawPage, string, error) {
	start, end, ok := strings.Cut(dim.ID, "|")
	if !ok {
		return nil, "", fmt.Errorf("%w: bad dimension %q", repository.ErrNonRetryable, dim.ID)
	}

	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return nil, "", fmt.Errorf("%w: bad page cursor %q", repository.ErrNonRetryable, cursor)
		}
		page = n
	}

	body := shiftsRequest{
		ServiceStartDate:      start,
		ServiceEndDate:        end,
		Page:                  page,
		PageSize:              c.pageSize,
		SelectedProfessionals: []string{},
		SelectedSectors:       []string{},
		FilterType:            []string{"3"},
		ServiceTypeID:         []string{},
		WeekDay:               -1,
		WeekDays:              []int{1, 2, 3, 4, 5, 6, 7},
		ProfessionalToViewID:  "incharge",
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Cookie", cred.Token).
		SetBody(body).
		Post(shiftsPath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: shifts page %d: %v", repository.ErrTransient, page, err)
	}

	// An expired session answers with a redirect to the login page.
	if resp.RawResponse != nil && strings.Contains(resp.RawResponse.Request.URL.Path, loginPath) {
		return nil, "", fmt.Errorf("%w: shifts page %d redirected to login", repository.ErrAuthExpired, page)
	}
	switch code := resp.StatusCode(); {
	case code == 401 || code == 403:
		return nil, "", fmt.Errorf("%w: shifts page %d: HTTP %d", repository.ErrAuthExpired, page, code)
	case code == 429 || code >= 500:
		return nil, "", fmt.Errorf("%w: shifts page %d: HTTP %d", repository.ErrTransient, page, code)
	case code >= 400:
		return nil, "", fmt.Errorf("%w: shifts page %d: HTTP %d", repository.ErrNonRetryable, page, code)
	}

	var env shiftsEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, "", fmt.Errorf("%w: shifts page %d: %v", repository.ErrNonRetryable, page, err)
	}

	raw := &entity.RawPage{
		Source:    entity.SourcePegaPlantao,
		Shape:     entity.ShapePegaPlantaoShift,
		Dimension: dim.ID,
		Cursor:    strconv.Itoa(page),
		Payload:   resp.Body(),
	}

	if len(env.Services) < c.pageSize {
		return raw, "", nil
	}
	return raw, strconv.Itoa(page + 1), nil
}

// dateRange returns today and the end of next month in the formats the
// listing endpoint expects.
func dateRange(now time.Time) (string, string) {
	firstOfNext := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
	endOfNext := firstOfNext.AddDate(0, 1, -1)

	return now.Format("2006-01-02"), endOfNext.Format("2006-01-02") + "T00:00:00"
}

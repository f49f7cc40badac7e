// Package cfm talks to the federal medical board's physician search API.
// Every search call carries a captcha-derived token; the board rejects the
// request once the token expires.
package cfm

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
	BaseURL    = "https://portal.cfm.org.br"
	searchPath = "/api_rest_php/api/v2/medicos/buscar_medicos"

	// PortalURL is the public search page carrying the reCAPTCHA widget.
	PortalURL = BaseURL + "/busca-medicos"

	userAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36`
)

// Federal units in fixed alphabetical order; the dimension sequence must
// be reproducible across runs for checkpoint resume to hold.
var federalUnits = []string{
	"AC", "AL", "AM", "AP", "BA", "CE", "DF", "ES", "GO",
	"MA", "MG", "MS", "MT", "PA", "PB", "PE", "PI", "PR",
	"RJ", "RN", "RO", "RR", "RS", "SC", "SE", "SP", "TO",
}

// Client implements repository.SourceClient and repository.TokenVerifier
// for the board.
type Client struct {
	http     *resty.Client
	pageSize int
	logger   *zap.Logger
}

// New creates a new board client.
func New(baseURL string, pageSize int, timeout time.Duration, logger *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", userAgent).
		SetHeader("Origin", baseURL).
		SetHeader("Referer", baseURL+"/busca-medicos")

	return &Client{http: http, pageSize: pageSize, logger: logger}
}

// Source implements repository.SourceClient.
func (c *Client) Source() string { return entity.SourceCFM }

// Dimensions returns one dimension per federal unit.
func (c *Client) Dimensions(ctx context.Context) ([]entity.FetchDimension, error) {
	dims := make([]entity.FetchDimension, 0, len(federalUnits))
	for _, uf := range federalUnits {
		dims = append(dims, entity.FetchDimension{ID: uf, Label: "federal unit " + uf})
	}
	return dims, nil
}

// searchRequest mirrors the portal's search payload. The API expects a
// single-element JSON array.
type searchRequest struct {
	UseCaptchaV2 bool          `json:"useCaptchav2"`
	Captcha      string        `json:"captcha"`
	Medico       searchFilters `json:"medico"`
	Page         int           `json:"page"`
	PageNumber   int           `json:"pageNumber"`
	PageSize     int           `json:"pageSize"`
}

type searchFilters struct {
	Nome                  string `json:"nome"`
	UFMedico              string `json:"ufMedico"`
	CRMMedico             string `json:"crmMedico"`
	MunicipioMedico       string `json:"municipioMedico"`
	TipoInscricaoMedico   string `json:"tipoInscricaoMedico"`
	SituacaoMedico        string `json:"situacaoMedico"`
	DetalheSituacaoMedico string `json:"detalheSituacaoMedico"`
	EspecialidadeMedico   string `json:"especialidadeMedico"`
	AreaAtuacaoMedico     string `json:"areaAtuacaoMedico"`
}

type searchEnvelope struct {
	Status   string          `json:"status"`
	Mensagem string          `json:"mensagem"`
	Dados    json.RawMessage `json:"dados"`
}

// countRow peeks the running total the API repeats on every record.
type countRow struct {
	Count json.Number `json:"COUNT"`
}

// FetchPage fetches one result page for a federal unit. The cursor is the
// 1-based page number; next is computed from the total count the API
// reports on each record.
func (c *Client) FetchPage(ctx context.Context, cred *entity.Credential, dim entity.FetchDimension, cursor string) (*entity.RawPage, string, error) {
	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return nil, "", fmt.Errorf("%w: bad page cursor %q", repository.ErrNonRetryable, cursor)
		}
		page = n
	}

	// The API expects a single-element JSON array; a slice is also the
	// only sequence kind resty will marshal.
	body := []searchRequest{{
		UseCaptchaV2: true,
		Captcha:      cred.Token,
		Medico:       searchFilters{UFMedico: dim.ID},
		Page:         page,
		PageNumber:   page,
		PageSize:     c.pageSize,
	}}

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(searchPath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: search %s page %d: %v", repository.ErrTransient, dim.ID, page, err)
	}
	if err := classifyStatus(resp.StatusCode()); err != nil {
		return nil, "", fmt.Errorf("%w: search %s page %d: HTTP %d", err, dim.ID, page, resp.StatusCode())
	}

	var env searchEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, "", fmt.Errorf("%w: search %s page %d: %v", repository.ErrNonRetryable, dim.ID, page, err)
	}
	if env.Status != "sucesso" {
		return nil, "", classifyEnvelope(env, dim.ID, page)
	}

	raw := &entity.RawPage{
		Source:    entity.SourceCFM,
		Shape:     entity.ShapeCFMSearch,
		Dimension: dim.ID,
		Cursor:    strconv.Itoa(page),
		Payload:   env.Dados,
	}

	total, rows := peekCount(env.Dados)
	if rows == 0 || page*c.pageSize >= total {
		return raw, "", nil
	}
	return raw, strconv.Itoa(page + 1), nil
}

// Verify implements repository.TokenVerifier with a one-record probe
// search. The board has no dedicated verification endpoint; a search that
// succeeds is the proof the token is accepted.
func (c *Client) Verify(ctx context.Context, token string) error {
	body := []searchRequest{{
		UseCaptchaV2: true,
		Captcha:      token,
		Medico:       searchFilters{UFMedico: federalUnits[0]},
		Page:         1,
		PageNumber:   1,
		PageSize:     1,
	}}

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(searchPath)
	if err != nil {
		return fmt.Errorf("%w: token probe: %v", repository.ErrTransient, err)
	}
	if err := classifyStatus(resp.StatusCode()); err != nil {
		return fmt.Errorf("%w: token probe: HTTP %d", err, resp.StatusCode())
	}

	var env searchEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("%w: token probe: %v", repository.ErrNonRetryable, err)
	}
	if env.Status != "sucesso" {
		return classifyEnvelope(env, "probe", 1)
	}
	return nil
}

func classifyStatus(code int) error {
	switch {
	case code == 401 || code == 403:
		return repository.ErrAuthExpired
	case code == 429 || code >= 500:
		return repository.ErrTransient
	case code >= 400:
		return repository.ErrNonRetryable
	}
	return nil
}

// classifyEnvelope maps an application-level failure. The API signals an
// expired or rejected captcha through the message text.
func classifyEnvelope(env searchEnvelope, dim string, page int) error {
	msg := strings.ToLower(env.Mensagem)
	if strings.Contains(msg, "captcha") || strings.Contains(msg, "token") {
		return fmt.Errorf("%w: search %s page %d: %s", repository.ErrAuthExpired, dim, page, env.Mensagem)
	}
	return fmt.Errorf("%w: search %s page %d: status %q: %s", repository.ErrNonRetryable, dim, page, env.Status, env.Mensagem)
}

func peekCount(dados json.RawMessage) (total, rows int) {
	var counts []countRow
	if err := json.Unmarshal(dados, &counts); err != nil || len(counts) == 0 {
		return 0, 0
	}
	n, _ := counts[0].Count.Int64()
	return int(n), len(counts)
}

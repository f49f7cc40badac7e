package cfm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/medcrawl/internal/entity"
	"github.com/user/medcrawl/internal/repository"
	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 2, 5*time.Second, zap.NewNop())
}

func searchResponse(t *testing.T, w http.ResponseWriter, dados string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	_, err := w.Write([]byte(`{"status":"sucesso","dados":` + dados + `}`))
	require.NoError(t, err)
}

func cred() *entity.Credential {
	return &entity.Credential{Source: entity.SourceCFM, Token: "captcha-token", IssuedAt: time.Now()}
}

func TestDimensionsCoverAllFederalUnits(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {})
	dims, err := c.Dimensions(context.Background())
	require.NoError(t, err)
	require.Len(t, dims, 27)
	assert.Equal(t, "AC", dims[0].ID)
	assert.Equal(t, "TO", dims[26].ID)

	again, err := c.Dimensions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dims, again, "dimension order must be reproducible")
}

func TestFetchPageSendsTokenAndPaginates(t *testing.T) {
	var got []searchRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		searchResponse(t, w, `[{"COUNT":"5","NU_CRM":"1000","SG_UF":"SP","NM_MEDICO":"A"},{"COUNT":"5","NU_CRM":"1001","SG_UF":"SP","NM_MEDICO":"B"}]`)
	})

	page, next, err := c.FetchPage(context.Background(), cred(), entity.FetchDimension{ID: "SP"}, "")
	require.NoError(t, err)

	require.Len(t, got, 1, "the search body is a single-element array")
	assert.Equal(t, "captcha-token", got[0].Captcha)
	assert.True(t, got[0].UseCaptchaV2)
	assert.Equal(t, "SP", got[0].Medico.UFMedico)
	assert.Equal(t, 1, got[0].Page)
	assert.Equal(t, 2, got[0].PageSize)

	assert.Equal(t, entity.ShapeCFMSearch, page.Shape)
	assert.Equal(t, "SP", page.Dimension)
	assert.Equal(t, "1", page.Cursor)
	assert.Equal(t, "2", next, "two of five records leaves more pages")
}

func TestFetchPageLastPage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		searchResponse(t, w, `[{"COUNT":"5","NU_CRM":"1004","SG_UF":"SP","NM_MEDICO":"E"}]`)
	})

	_, next, err := c.FetchPage(context.Background(), cred(), entity.FetchDimension{ID: "SP"}, "3")
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestFetchPageEmptyResult(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		searchResponse(t, w, `[]`)
	})

	page, next, err := c.FetchPage(context.Background(), cred(), entity.FetchDimension{ID: "RR"}, "")
	require.NoError(t, err)
	assert.Empty(t, next)
	assert.JSONEq(t, `[]`, string(page.Payload))
}

func TestFetchPageRejectedCaptcha(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"erro","mensagem":"Token do captcha invalido"}`))
	})

	_, _, err := c.FetchPage(context.Background(), cred(), entity.FetchDimension{ID: "SP"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrAuthExpired)
}

func TestFetchPageStatusClassification(t *testing.T) {
	cases := []struct {
		name string
		code int
		want error
	}{
		{"unauthorized", http.StatusUnauthorized, repository.ErrAuthExpired},
		{"forbidden", http.StatusForbidden, repository.ErrAuthExpired},
		{"throttled", http.StatusTooManyRequests, repository.ErrTransient},
		{"server error", http.StatusBadGateway, repository.ErrTransient},
		{"bad request", http.StatusBadRequest, repository.ErrNonRetryable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
			})
			_, _, err := c.FetchPage(context.Background(), cred(), entity.FetchDimension{ID: "SP"}, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFetchPageBadCursor(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, _, err := c.FetchPage(context.Background(), cred(), entity.FetchDimension{ID: "SP"}, "abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrNonRetryable)
}

func TestVerifyAcceptedToken(t *testing.T) {
	var got []searchRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		searchResponse(t, w, `[{"COUNT":"1","NU_CRM":"1","SG_UF":"AC","NM_MEDICO":"A"}]`)
	})

	require.NoError(t, c.Verify(context.Background(), "probe-token"))
	require.Len(t, got, 1)
	assert.Equal(t, "probe-token", got[0].Captcha)
	assert.Equal(t, 1, got[0].PageSize, "the probe asks for a single record")
}

func TestVerifyRejectedToken(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"erro","mensagem":"captcha expirado"}`))
	})

	err := c.Verify(context.Background(), "stale-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrAuthExpired)
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/lotledger/backend/src/models"
	"github.com/username/lotledger/backend/src/processors"
	"github.com/username/lotledger/backend/src/services"
)

const rateExport = `{"items": [
  {"Tarih": "10-01-2023", "TP_DK_USD_S_YTL": "18.80"},
  {"Tarih": "15-06-2023", "TP_DK_USD_S_YTL": "23.50"},
  {"Tarih": "2023-1", "TP_TUFE1YI_T1": "1000"},
  {"Tarih": "2023-6", "TP_TUFE1YI_T1": "1050"}
]}`

const uploadStatement = `Statement,Header,Field Name,Field Value
Statement,Data,Title,Activity Statement
Trades,Header,DataDiscriminator,Asset Category,Currency,Symbol,Date/Time,Quantity,T. Price,C. Price,Proceeds,Comm/Fee,Basis,Realized P/L,MTM P/L,Code
Trades,Data,Order,Stocks,USD,AAPL,"2023-06-15, 10:01:02",-10,25,25.1,250,-1,-400,-151,,C
Trades,Data,Trade,Stocks,USD,AAPL,"2023-06-15, 10:01:02",-10,25,25.1,250,-1,-400,-151,,C
Trades,Data,ClosedLot,Stocks,USD,AAPL,2023-01-10,10,40,,,,400,,,
Trades,Total,,Stocks,USD,,,,,,250,-1,-400,-151,,
`

func newTestRouter(t *testing.T, maxUpload int64, opts RouterOptions) http.Handler {
	t.Helper()
	hist, err := processors.ParseHistoricalRates(strings.NewReader(rateExport))
	require.NoError(t, err)

	resolver := services.NewRateResolver(hist, nil, services.ResolverOptions{
		LocalCurrency:  "TRY",
		CurrencySeries: map[string]string{"USD": "TP.DK.USD.S.YTL"},
		IndexSeries:    "TP.TUFE1YI.T1",
		FallbackDays:   services.DefaultFallbackDays,
	})
	svc := services.NewStatementService(
		processors.NewLotMatcher(resolver, processors.DefaultMatcherOptions()),
		processors.NewCashConverter(resolver),
		processors.NewDividendProcessor(),
		cache.New(services.DefaultReportExpiration, services.CacheCleanupInterval),
		services.StatementOptions{TaxRate: decimal.RequireFromString("0.15")},
	)
	return NewRouter(NewStatementHandler(svc, maxUpload), opts)
}

func uploadRequest(t *testing.T, field, content, source string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, "statement.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	if source != "" {
		require.NoError(t, mw.WriteField("source", source))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/statements", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatementHandler_UploadAndRetrieve(t *testing.T) {
	router := newTestRouter(t, 1<<20, RouterOptions{})

	rec := serve(router, uploadRequest(t, "file", uploadStatement, "ibkr"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var report services.StatementReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.NotEmpty(t, report.ID)
	assert.Equal(t, "/api/statements/"+report.ID, rec.Header().Get("Location"))
	require.Len(t, report.Disposals, 1)
	d := report.Disposals[0]
	// 10*25*23.50 - 10*40*18.80 - 1*23.50
	assert.True(t, decimal.RequireFromString("-1668.5").Equal(d.TaxableGain.Decimal), d.TaxableGain.Decimal.String())
	assert.True(t, decimal.RequireFromString("5").Equal(d.IndexDelta.Decimal))
	assert.Equal(t, 1, report.Summary.Disposals)

	get := httptest.NewRequest(http.MethodGet, "/api/statements/"+report.ID, nil)
	rec = serve(router, get)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	get = httptest.NewRequest(http.MethodGet, "/api/statements/"+report.ID, nil)
	get.Header.Set("If-None-Match", `"stale", `+etag)
	rec = serve(router, get)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/statements/"+report.ID+"/disposals", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var disposals []models.MatchedDisposal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &disposals))
	assert.Len(t, disposals, 1)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/statements/"+report.ID+"/disposals?flagged=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/statements/"+report.ID+"/disposals?flagged=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatementHandler_UploadOutlivesClientDisconnect(t *testing.T) {
	router := newTestRouter(t, 1<<20, RouterOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := serve(router, uploadRequest(t, "file", uploadStatement, "").WithContext(ctx))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var report services.StatementReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Disposals, 1)
	assert.Equal(t, 0, report.Summary.FlaggedDisposals)
	assert.True(t, decimal.RequireFromString("-1668.5").Equal(report.Disposals[0].TaxableGain.Decimal))
}

func TestStatementHandler_UploadRejections(t *testing.T) {
	router := newTestRouter(t, 512, RouterOptions{})

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
	}{
		{"missing file field", uploadRequest(t, "document", uploadStatement, ""), http.StatusBadRequest},
		{"binary content", uploadRequest(t, "file", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR", ""), http.StatusBadRequest},
		{"file over the limit", uploadRequest(t, "file", strings.Repeat("Fees,Data,x\n", 100), ""), http.StatusRequestEntityTooLarge},
		{"unsupported broker", uploadRequest(t, "file", uploadStatement[:300], "degiro"), http.StatusBadRequest},
		{"no sections", uploadRequest(t, "file", "\n\n\n", ""), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, tt.req)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestStatementHandler_UnknownReport(t *testing.T) {
	router := newTestRouter(t, 1<<20, RouterOptions{})

	for _, path := range []string{"/api/statements/nope", "/api/statements/nope/disposals"} {
		rec := serve(router, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestRouter_UploadsAreLimitedPerClient(t *testing.T) {
	router := newTestRouter(t, 1<<20, RouterOptions{UploadsPerMin: 1})

	rec := serve(router, uploadRequest(t, "file", uploadStatement, ""))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = serve(router, uploadRequest(t, "file", uploadStatement, ""))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Reads are not covered by the upload limit.
	rec = serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_GlobalRateLimit(t *testing.T) {
	router := newTestRouter(t, 1<<20, RouterOptions{RateLimitRPS: 0.001, RateLimitBurst: 1})

	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestRouter_CORSAndHealth(t *testing.T) {
	router := newTestRouter(t, 1<<20, RouterOptions{AllowedOrigins: []string{"http://localhost:3000"}})

	pre := httptest.NewRequest(http.MethodOptions, "/api/statements", nil)
	pre.Header.Set("Origin", "http://localhost:3000")
	rec := serve(router, pre)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	other := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	other.Header.Set("Origin", "http://evil.example")
	other.Header.Set(requestIDHeader, "req-1")
	rec = serve(router, other)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))
	assert.Equal(t, "ok", rec.Body.String())

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lotledger_")
}

const cashStatement = `Dividends,Header,Currency,Date,Description,Amount
Dividends,Data,USD,2023-06-15,AAPL(US0378331005) Cash Dividend USD 0.24 per Share (Ordinary Dividend),2.4
Withholding Tax,Header,Currency,Date,Description,Amount,Code
Withholding Tax,Data,USD,2023-06-15,AAPL(US0378331005) Cash Dividend USD 0.24 per Share - US Tax,-0.36,
Fees,Header,Subtitle,Currency,Date,Description,Amount
Fees,Data,Other Fees,USD,2023-01-10,Market data fee,-10
`

func TestStatementHandler_CashEndpoints(t *testing.T) {
	router := newTestRouter(t, 1<<20, RouterOptions{})

	rec := serve(router, uploadRequest(t, "file", cashStatement, ""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var report services.StatementReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	base := "/api/statements/" + report.ID

	rec = serve(router, httptest.NewRequest(http.MethodGet, base+"/dividends", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var dividends struct {
		Dividends        []models.CashRecord `json:"dividends"`
		WithholdingTaxes []models.CashRecord `json:"withholdingTaxes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dividends))
	require.Len(t, dividends.Dividends, 1)
	require.Len(t, dividends.WithholdingTaxes, 1)
	assert.True(t, decimal.RequireFromString("56.4").Equal(dividends.Dividends[0].AmountLocal.Decimal))

	rec = serve(router, httptest.NewRequest(http.MethodGet, base+"/dividend-tax-summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.DividendTaxResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	us := summary["2023"]["US"]
	assert.True(t, decimal.RequireFromString("56.4").Equal(us.Gross), us.Gross.String())
	assert.True(t, decimal.RequireFromString("-8.46").Equal(us.Withheld), us.Withheld.String())

	rec = serve(router, httptest.NewRequest(http.MethodGet, base+"/fees", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var fees []models.CashRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fees))
	require.Len(t, fees, 1)
	assert.True(t, decimal.RequireFromString("-188").Equal(fees[0].AmountLocal.Decimal))

	rec = serve(router, httptest.NewRequest(http.MethodGet, base+"/disposals", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

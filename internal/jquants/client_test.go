package jquants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epeers/netnet/internal/models"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
}

func newTestClient(serverURL string, opts ...Option) *Client {
	base := []Option{
		WithIDToken("good"),
		WithCredentials("user@example.com", "secret"),
		WithRetryPolicy(fastRetry()),
	}
	return NewClient(serverURL, append(base, opts...)...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestFetchFollowsPagination(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer good", r.Header.Get("Authorization"))
		assert.Equal(t, "72030", r.URL.Query().Get("code"))
		switch r.URL.Query().Get("pagination_key") {
		case "":
			writeJSON(w, 200, map[string]any{"statements": []map[string]string{{"n": "1"}, {"n": "2"}}, "pagination_key": "p2"})
		case "p2":
			writeJSON(w, 200, map[string]any{"statements": []map[string]string{{"n": "3"}}, "pagination_key": "p3"})
		case "p3":
			writeJSON(w, 200, map[string]any{"statements": []map[string]string{{"n": "4"}}})
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	records, err := client.Fetch(context.Background(), EndpointStatements, codeParams("7203.T"))
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, int32(3), calls.Load())

	var last map[string]string
	require.NoError(t, json.Unmarshal(records[3], &last))
	assert.Equal(t, "4", last["n"])
}

func TestFetchEmptyEntity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"fs_details": []any{}})
	}))
	defer server.Close()

	records, err := newTestClient(server.URL).Fetch(context.Background(), EndpointFSDetails, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchRepeatedPaginationKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"info": []any{map[string]string{}}, "pagination_key": "same"})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Fetch(context.Background(), EndpointListedInfo, nil)
	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
}

// authServer rejects any token but "fresh" and mints "fresh" on refresh.
type authServer struct {
	authUser    atomic.Int32
	authRefresh atomic.Int32
	data        atomic.Int32
	alwaysDeny  bool
	authGate    chan struct{}
}

func (a *authServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/token/auth_user", func(w http.ResponseWriter, r *http.Request) {
		a.authUser.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user@example.com", body["mailaddress"])
		if a.authGate != nil {
			<-a.authGate
		}
		time.Sleep(20 * time.Millisecond)
		writeJSON(w, 200, map[string]string{"refreshToken": "refresh-1"})
	})
	mux.HandleFunc("/v1/token/auth_refresh", func(w http.ResponseWriter, r *http.Request) {
		a.authRefresh.Add(1)
		assert.Equal(t, "refresh-1", r.URL.Query().Get("refreshtoken"))
		writeJSON(w, 200, map[string]string{"idToken": "fresh"})
	})
	mux.HandleFunc("/v1/fins/statements", func(w http.ResponseWriter, r *http.Request) {
		a.data.Add(1)
		if a.alwaysDeny || r.Header.Get("Authorization") != "Bearer fresh" {
			writeJSON(w, 401, map[string]string{"message": "The incoming token is invalid or expired."})
			return
		}
		writeJSON(w, 200, map[string]any{"statements": []any{}})
	})
	return mux
}

func TestUnauthorizedRefreshesOnceForConcurrentCallers(t *testing.T) {
	as := &authServer{}
	server := httptest.NewServer(as.handler(t))
	defer server.Close()

	client := newTestClient(server.URL, WithIDToken("expired"))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Fetch(context.Background(), EndpointStatements, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), as.authUser.Load(), "refresh must be shared")
	assert.Equal(t, int32(1), as.authRefresh.Load())
	assert.Equal(t, "fresh", client.token())
}

func TestCancelledCallerDoesNotFailSharedRefresh(t *testing.T) {
	as := &authServer{authGate: make(chan struct{})}
	server := httptest.NewServer(as.handler(t))
	defer server.Close()

	client := newTestClient(server.URL, WithIDToken("expired"))

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := client.Fetch(leaderCtx, EndpointStatements, nil)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return as.authUser.Load() == 1 }, time.Second, time.Millisecond)

	waiterErr := make(chan error, 1)
	go func() {
		_, err := client.Fetch(context.Background(), EndpointStatements, nil)
		waiterErr <- err
	}()
	require.Eventually(t, func() bool { return as.data.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(as.authGate)
	err := <-waiterErr
	require.NoError(t, err)
	assert.False(t, IsFatal(err))
	assert.Equal(t, "fresh", client.token())

	_, err = client.Fetch(context.Background(), EndpointStatements, nil)
	assert.NoError(t, err)
	assert.Equal(t, int32(1), as.authUser.Load())
}

func TestUnauthorizedWithoutTokenObtainsOne(t *testing.T) {
	as := &authServer{}
	server := httptest.NewServer(as.handler(t))
	defer server.Close()

	client := NewClient(server.URL, WithCredentials("user@example.com", "secret"), WithRetryPolicy(fastRetry()))
	_, err := client.Fetch(context.Background(), EndpointStatements, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), as.data.Load())
}

func TestSecondUnauthorizedIsFatal(t *testing.T) {
	as := &authServer{alwaysDeny: true}
	server := httptest.NewServer(as.handler(t))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Fetch(context.Background(), EndpointStatements, nil)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, IsFatal(err))
	assert.Equal(t, int32(2), as.data.Load(), "one replay after refresh")

	// Later calls short-circuit without touching the server.
	_, err = client.Fetch(context.Background(), EndpointStatements, nil)
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, int32(2), as.data.Load())
}

func TestRefreshWithoutCredentialsIsFatal(t *testing.T) {
	as := &authServer{}
	server := httptest.NewServer(as.handler(t))
	defer server.Close()

	client := NewClient(server.URL, WithIDToken("expired"), WithRetryPolicy(fastRetry()))
	_, err := client.Fetch(context.Background(), EndpointStatements, nil)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, errNoCredentials)
	assert.Equal(t, int32(0), as.authUser.Load())
}

func TestTransientErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"message": "slow down"})
			return
		}
		if n == 2 {
			writeJSON(w, http.StatusBadGateway, map[string]string{"message": "upstream"})
			return
		}
		writeJSON(w, 200, map[string]any{"dividend": []map[string]string{{"Code": "72030"}}})
	}))
	defer server.Close()

	records, err := newTestClient(server.URL).Fetch(context.Background(), EndpointDividend, nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "down"})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Fetch(context.Background(), EndpointDividend, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	var te *TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
	assert.False(t, IsFatal(err))
}

func TestClientErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "code is invalid"})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Fetch(context.Background(), EndpointStatements, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "code is invalid", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchPageFailureDiscardsPartialResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pagination_key") == "" {
			writeJSON(w, 200, map[string]any{"statements": []any{map[string]string{}}, "pagination_key": "p2"})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "gone"})
	}))
	defer server.Close()

	records, err := newTestClient(server.URL).Fetch(context.Background(), EndpointStatements, nil)
	assert.Error(t, err)
	assert.Nil(t, records)
}

func TestFetchHonoursCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{})
	}))
	defer server.Close()

	client := newTestClient(server.URL, WithRetryPolicy(RetryPolicy{MaxAttempts: 100, MinWait: time.Second, MaxWait: time.Second}))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Fetch(ctx, EndpointStatements, nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithTimeoutLeavesSharedClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: 5 * time.Second}
	client := NewClient("", WithHTTPClient(shared), WithTimeout(time.Minute))

	assert.Equal(t, 5*time.Second, shared.Timeout)
	assert.Equal(t, time.Minute, client.httpClient.Timeout)
	assert.NotSame(t, shared, client.httpClient)
}

func TestRetryPolicyWait(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 6, MinWait: 5 * time.Second, MaxWait: 60 * time.Second}

	for _, r := range []float64{0, 0.5, 0.999} {
		rv := r
		p.Rand = func() float64 { return rv }
		for n := 1; n <= 10; n++ {
			w := p.Wait(n)
			assert.GreaterOrEqual(t, w, p.MinWait, fmt.Sprintf("n=%d r=%v", n, r))
			assert.LessOrEqual(t, w, p.MaxWait, fmt.Sprintf("n=%d r=%v", n, r))
		}
	}

	p.Rand = func() float64 { return 0.999999 }
	assert.Equal(t, 5*time.Second, p.Wait(1).Round(time.Second))
	assert.Equal(t, 10*time.Second, p.Wait(2).Round(time.Second))
	assert.Equal(t, 60*time.Second, p.Wait(8).Round(time.Second))
}

func TestStatementsParsing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"statements":[
			{"DisclosedDate":"2024-05-10","LocalCode":"72030","TypeOfDocument":"FYFinancialStatements_Consolidated_IFRS","TypeOfCurrentPeriod":"FY","TotalAssets":"90114296000000","Equity":"","NumberOfIssuedAndOutstandingSharesAtTheEndOfFiscalYearIncludingTreasuryStock":"15794987460"},
			{"DisclosedDate":"2024-08-01","LocalCode":"72030","TypeOfCurrentPeriod":"1Q","NumberOfIssuedAndOutstandingSharesAtTheEndOfFiscalYearIncludingTreasuryStock":15794987460},
			{"DisclosedDate":"","LocalCode":"72030"},
			{"DisclosedDate":"not-a-date"}
		]}`)
	}))
	defer server.Close()

	records, err := newTestClient(server.URL).Statements(context.Background(), "7203.T")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, models.Ticker("7203.T"), records[0].Ticker)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), records[0].DisclosedDate)
	assert.Equal(t, "FY", records[0].PeriodType)
	require.NotNil(t, records[0].SharesOutstanding)
	assert.Equal(t, 15794987460.0, *records[0].SharesOutstanding)
	assert.Nil(t, records[0].Equity)
	assert.Equal(t, 15794987460.0, *records[1].SharesOutstanding)
}

func TestFSDetailsParsing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"fs_details":[{"DisclosedDate":"2024-05-10","LocalCode":"72030","TypeOfDocument":"FY",
			"FinancialStatement":{"Current assets (IFRS)":"1000","Liabilities (IFRS)":400,"Type of current period, DEI":"FY","Current fiscal year end date, DEI":"2024-03-31","Goodwill":null}}]}`)
	}))
	defer server.Close()

	records, err := newTestClient(server.URL).FSDetails(context.Background(), "7203.T")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1000", records[0].Items["Current assets (IFRS)"])
	assert.Equal(t, "400", records[0].Items["Liabilities (IFRS)"])
	assert.Equal(t, "FY", records[0].PeriodType)
	assert.Equal(t, "2024-03-31", records[0].FiscalYearEnd)
	assert.Equal(t, "", records[0].Items["Goodwill"])
}

func TestDailyQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("date") == "2024-05-11" {
			fmt.Fprint(w, `{"daily_quotes":[]}`)
			return
		}
		fmt.Fprintf(w, `{"daily_quotes":[{"Date":"%s","Code":"72030","Close":3500.0,"Open":null}]}`, r.URL.Query().Get("date"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	q, err := client.DailyQuote(context.Background(), "7203.T", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.True(t, q.HasClose())
	assert.Equal(t, 3500.0, *q.Close)
	assert.Nil(t, q.Open)

	q, err = client.DailyQuote(context.Background(), "7203.T", time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, q)
}

func TestListedInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-01-04", r.URL.Query().Get("date"))
		fmt.Fprint(w, `{"info":[
			{"Date":"2024-01-04","Code":"72030","CompanyName":"Toyota","MarketCode":"0111"},
			{"Date":"2024-01-04","Code":"72030","CompanyName":"Toyota dup"},
			{"Date":"2024-01-04","Code":"13010","CompanyName":"Kyokuyo"},
			{"Date":"2024-01-04","Code":""}
		]}`)
	}))
	defer server.Close()

	issues, err := newTestClient(server.URL).ListedInfo(context.Background(), time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, models.Ticker("7203.T"), issues[0].Ticker)
	assert.Equal(t, "Toyota", issues[0].CompanyName)
	assert.Equal(t, models.Ticker("1301.T"), issues[1].Ticker)
}

package wholesalemarket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/loadguard/auth"
)

var day = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func body() string {
	var vals []string
	for h := 0; h < 24; h++ {
		s := day.Add(time.Duration(h) * time.Hour)
		vals = append(vals, fmt.Sprintf(`{"start_date":%q,"end_date":%q,"value":1000,"price":%d}`,
			s.Format(time.RFC3339), s.Add(time.Hour).Format(time.RFC3339), 100-h))
	}
	// One interval of the next day is ignored.
	next := day.AddDate(0, 0, 1)
	vals = append(vals, fmt.Sprintf(`{"start_date":%q,"end_date":%q,"value":1,"price":1}`,
		next.Format(time.RFC3339), next.Add(time.Hour).Format(time.RFC3339)))
	return `{"france_power_exchanges":[{"start_date":"x","end_date":"y","values":[` + strings.Join(vals, ",") + `]}]}`
}

func TestFetch(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	var gotAuth, gotStart string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotStart = r.URL.Query().Get("start_date")
		_, _ = w.Write([]byte(body()))
	}))
	defer api.Close()

	cred := auth.NewClientCred(auth.Conf{ClientID: "id", ClientSecret: "s", AuthURL: tokenSrv.URL})
	c := New(WithBaseURL(api.URL), WithAuth(cred))
	points, err := c.Fetch(context.Background(), day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, points, 24)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, day.Format(time.RFC3339), gotStart)
	assert.Equal(t, 100.0, points[0].PriceEURMWh)
	assert.True(t, points[23].Start.Equal(day.Add(23*time.Hour)))
}

func TestFetchErrors(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start_date") == "" {
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer api.Close()

	_, err := New(WithBaseURL(api.URL)).Fetch(context.Background(), day, day.AddDate(0, 0, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"france_power_exchanges":[{"values":[{"start_date":"nope","end_date":"nope"}]}]}`))
	}))
	defer bad.Close()
	_, err = New(WithBaseURL(bad.URL)).Fetch(context.Background(), day, day.AddDate(0, 0, 1))
	assert.Error(t, err)
}

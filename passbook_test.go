package passbook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passbooklabs/passbook"
	"github.com/passbooklabs/passbook/pkg/apps"
	"github.com/passbooklabs/passbook/pkg/domain"
	"github.com/passbooklabs/passbook/pkg/statement"
)

const statementCSV = `Date,Narration,Chq./Ref.No.,Value Dt,Withdrawal Amt.,Deposit Amt.,Closing Balance
01/03/26,SALARY MARCH,REF001,01/03/26,0.00,50000.00,75000.00
05/03/26,RENT,REF002,05/03/26,15000.00,0.00,60000.00
01/04/26,SALARY APRIL,REF003,01/04/26,0.00,50000.00,110000.00
10/04/26,GROCERIES,REF004,10/04/26,5000.00,0.00,105000.00
`

func TestNew_RequiresBind(t *testing.T) {
	_, err := passbook.New("")
	require.ErrorIs(t, err, domain.ErrNoBindAddress)
}

func TestNew_UnknownApp(t *testing.T) {
	_, err := passbook.New(":0", passbook.WithApp("nope", nil))
	require.ErrorIs(t, err, domain.ErrUnknownApp)
}

func TestListen_ReportsEphemeralAddr(t *testing.T) {
	svc, err := passbook.New("127.0.0.1:0")
	require.NoError(t, err)

	require.Nil(t, svc.Addr())
	require.NoError(t, svc.Listen())
	require.NotNil(t, svc.Addr())
	assert.NotEqual(t, "127.0.0.1:0", svc.Addr().String())
}

// startService runs svc in the background and returns its base URL. The
// service is drained and its Run error checked on cleanup.
func startService(t *testing.T, svc *passbook.Service) string {
	t.Helper()
	require.NoError(t, svc.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("service did not drain")
		}
	})
	return fmt.Sprintf("http://%s", svc.Addr())
}

func waitServing(t *testing.T, base string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/formats")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 25*time.Millisecond)
}

func TestRun_ServesAnalyzerEndToEnd(t *testing.T) {
	svc, err := passbook.New("127.0.0.1:0",
		passbook.WithWorkers(2),
		passbook.WithGracePeriod(2*time.Second))
	require.NoError(t, err)

	base := startService(t, svc)
	waitServing(t, base)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "statement.csv")
	require.NoError(t, err)
	_, err = io.WriteString(fw, statementCSV)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(base+"/analyze", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got statement.Analysis
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 4, got.TotalTransactions)
	assert.Equal(t, 100000.0, got.Summary.TotalIncome)
	assert.Equal(t, "Strong", got.Loan.Rating)
}

func TestStatus_ReflectsServingPool(t *testing.T) {
	svc, err := passbook.New("127.0.0.1:0", passbook.WithWorkers(2))
	require.NoError(t, err)

	assert.Nil(t, svc.Status())

	base := startService(t, svc)
	waitServing(t, base)

	require.Eventually(t, func() bool {
		statuses := svc.Status()
		if len(statuses) != 2 {
			return false
		}
		for _, st := range statuses {
			if st.State != domain.StateServing {
				return false
			}
		}
		return true
	}, 5*time.Second, 25*time.Millisecond)
}

func TestWithRegistry_ServesCustomApp(t *testing.T) {
	reg := apps.NewRegistry()
	reg.Register("echo", func(ctx context.Context, rt apps.Runtime) (http.Handler, error) {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "pong")
		}), nil
	})

	svc, err := passbook.New("127.0.0.1:0",
		passbook.WithRegistry(reg),
		passbook.WithApp("echo", nil))
	require.NoError(t, err)

	base := startService(t, svc)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/ping")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body) == "pong"
	}, 5*time.Second, 25*time.Millisecond)
}

func TestReload_PoolKeepsServing(t *testing.T) {
	svc, err := passbook.New("127.0.0.1:0", passbook.WithWorkers(2))
	require.NoError(t, err)

	base := startService(t, svc)
	waitServing(t, base)

	svc.Reload()

	// A rolling reload must never leave the pool unreachable.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/formats")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		time.Sleep(20 * time.Millisecond)
	}
}

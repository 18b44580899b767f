package rewards_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/api/routes"
	"github.com/angelmondragon/groupbuy-backend/internal/groupbuy"
	internalrewards "github.com/angelmondragon/groupbuy-backend/internal/rewards"
	"github.com/angelmondragon/groupbuy-backend/pkg/config"
	"github.com/angelmondragon/groupbuy-backend/pkg/notify"
	"github.com/angelmondragon/groupbuy-backend/pkg/valuetransfer"
)

// settledOrder drives a full create/join/fulfill cycle so reward records
// exist, then returns the router and the joined retailer.
func settledOrder(t *testing.T) (http.Handler, uuid.UUID) {
	t.Helper()

	paymentBank := valuetransfer.NewMemoryBank(uuid.New())
	rewardBank := valuetransfer.NewMemoryBank(uuid.New())
	emitter := &notify.MemoryEmitter{}
	manufacturer := uuid.New()
	platformReward := uuid.New()
	rewardBank.Seed(platformReward, 1_000_000)

	ledger, err := groupbuy.NewLedger(groupbuy.Params{
		PlatformFeeBps:        100,
		RewardPoolBps:         500,
		PlatformAccount:       uuid.New(),
		PaymentTreasury:       paymentBank.Self(),
		RewardPoolAccount:     rewardBank.Self(),
		PlatformRewardAccount: platformReward,
		AdminAccount:          uuid.New(),
	}, paymentBank, rewardBank, emitter)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	distributor, err := internalrewards.NewDistributor(rewardBank, emitter)
	if err != nil {
		t.Fatalf("NewDistributor: %v", err)
	}
	ledger.SetDistributor(distributor)

	retailer := uuid.New()
	paymentBank.Seed(retailer, 10_000)

	order, err := ledger.CreateOrder(context.Background(), groupbuy.CreateOrderInput{
		ManufacturerID: manufacturer,
		ProductID:      "SKU-7",
		MinUnits:       100,
		InitialPrice:   10,
		Deadline:       time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if err := ledger.JoinOrder(context.Background(), order.ID, retailer, 100); err != nil {
		t.Fatalf("JoinOrder: %v", err)
	}
	if _, err := ledger.ExecuteFulfillment(context.Background(), order.ID); err != nil {
		t.Fatalf("ExecuteFulfillment: %v", err)
	}

	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	return routes.NewRouter(cfg, nil, nil, ledger), retailer
}

func doJSON(t *testing.T, router http.Handler, method, path string, actor uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(nil))
	req.Header.Set("X-Actor-Id", actor.String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRewardDetailAndClaim(t *testing.T) {
	router, retailer := settledOrder(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/1/rewards", retailer)
	if rec.Code != http.StatusOK {
		t.Fatalf("detail status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var detail struct {
		Data struct {
			Amount  int64 `json:"amount"`
			Claimed bool  `json:"claimed"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	// Pool is floor(1000*500/10000) = 50, all to the sole contributor.
	if detail.Data.Amount != 50 || detail.Data.Claimed {
		t.Fatalf("detail = %+v", detail.Data)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/orders/1/rewards/claim", retailer)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var claim struct {
		Data struct {
			Amount int64 `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &claim); err != nil {
		t.Fatalf("decode claim: %v", err)
	}
	if claim.Data.Amount != 50 {
		t.Fatalf("claim amount = %d, want 50", claim.Data.Amount)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/orders/1/rewards/claim", retailer)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second claim status = %d, want 422", rec.Code)
	}
}

func TestRewardDetailUnknownCaller(t *testing.T) {
	router, _ := settledOrder(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/1/rewards", uuid.New())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRewardClaimUnknownOrder(t *testing.T) {
	router, retailer := settledOrder(t)

	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/rewards/claim", 99), retailer)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

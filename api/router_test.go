package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/ringkv/api/model"
	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/node"
	"github.com/maxpoletaev/ringkv/storage/inmemory"
	"github.com/maxpoletaev/ringkv/transport/emulnet"
)

// startCluster runs three nodes over an emulated network. The first one is
// driven by a loop, the others by a plain ticker.
func startCluster(t *testing.T, ctx context.Context, wg *sync.WaitGroup) *node.Loop {
	network := emulnet.New(emulnet.DefaultConfig())
	nodes := make([]*node.Node, 3)

	for i := range nodes {
		self := membership.MustParsePeerID(fmt.Sprintf("10.0.0.%d:7000", i+1))

		ep, err := network.Endpoint(self)
		require.NoError(t, err)

		conf := node.DefaultConfig()
		conf.Self = self
		conf.Introducer = membership.MustParsePeerID("10.0.0.1:7000")

		nodes[i], err = node.New(conf, ep, inmemory.New())
		require.NoError(t, err)
	}

	loop := node.NewLoop(nodes[0], time.Millisecond, nil)
	nodes[1].Start()
	nodes[2].Start()

	wg.Add(2)

	go func() {
		defer wg.Done()
		_ = loop.Run(ctx)
	}()

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				nodes[1].Tick()
				nodes[2].Tick()
			}
		}
	}()

	return loop
}

func TestRouter_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wg := sync.WaitGroup{}
	defer wg.Wait()
	defer cancel()

	router := CreateRouter(startCluster(t, ctx, &wg))

	do := func(method, target, body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(rr, req)

		return rr
	}

	require.Eventually(t, func() bool {
		var resp model.GetMembersResponse

		rr := do(http.MethodGet, "/cluster/members", "")
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			return false
		}

		return len(resp.Members) == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return do(http.MethodPost, "/kv/foo", `{"Value": "bar"}`).Code == http.StatusCreated
	}, 5*time.Second, 10*time.Millisecond)

	rr := do(http.MethodGet, "/kv/foo", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp model.GetKeyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "bar", resp.Value)
	assert.True(t, resp.Exists)

	assert.Equal(t, http.StatusOK, do(http.MethodDelete, "/kv/foo", "").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/kv/foo", "").Code)
}

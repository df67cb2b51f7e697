package arknights

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"GachaSync/internal/adapter"
	"GachaSync/internal/config"
	"GachaSync/internal/model"
	"GachaSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pathUserInfo, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		token, _ := body["token"].(string)
		if ct, ok := body["channelToken"].(map[string]interface{}); ok {
			token, _ = ct["token"].(string)
		}
		if token != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"status":0,"msg":"OK","data":{"uid":"12345678","nickName":"博士#1234"}}`))
	})
	mux.HandleFunc(pathGachaRecord, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "good" || r.URL.Query().Get("channelId") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("page") != "1" {
			_, _ = w.Write([]byte(`{"code":0,"data":{"list":[]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"list":[
			{"ts":200,"pool":"常驻标准寻访","chars":[{"name":"能天使","rarity":5,"isNew":true}]},
			{"ts":100,"pool":"常驻标准寻访","chars":[{"name":"芬","rarity":2,"isNew":false}]}]}}`))
	})
	mux.HandleFunc(pathDiamondRecord, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":{"list":[{"ts":300,"operation":"寻访","changes":[{"type":"Android","before":100,"after":94}]}]}}`))
	})
	mux.HandleFunc(pathPayRecord, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":0,"data":[{"orderId":"o1","productName":"源石x6","amount":600,"payTime":"1700000000","platform":1}]}`))
	})
	mux.HandleFunc(pathGiftRecord, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":[{"ts":400,"giftName":"周年礼包","code":"ABC"}]}`))
	})
	mux.HandleFunc(pathGiftExchange, func(w http.ResponseWriter, r *http.Request) {
		csrf := r.Header.Get("X-Csrf-Token")
		cookie, err := r.Cookie("csrf_token")
		if csrf == "" || err != nil || cookie.Value != csrf {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"msg":"兑换成功"}`))
	})
	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, base string, channel model.Channel) *Client {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	req := httpclient.NewRequester(&http.Client{Timeout: 5 * time.Second}, httpclient.NewGate(5),
		httpclient.RetryPolicy{Attempts: 1}, logger)
	cfg := &config.ChannelConfig{GameBaseURL: base, AccountBaseURL: base}
	if channel == model.ChannelBilibili {
		return NewBilibiliClient(cfg, req, logger).(*Client)
	}
	return NewOfficialClient(cfg, req, logger).(*Client)
}

func TestGetUserInfo(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.Close()
	ctx := context.Background()

	for _, ch := range []model.Channel{model.ChannelOfficial, model.ChannelBilibili} {
		info, err := newTestClient(t, srv.URL, ch).Session("good").GetUserInfo(ctx)
		if err != nil {
			t.Fatalf("%s GetUserInfo error: %v", ch, err)
		}
		if info.UID != "12345678" || info.NickName != "博士#1234" {
			t.Errorf("%s info = %+v", ch, info)
		}
	}

	_, err := newTestClient(t, srv.URL, model.ChannelOfficial).Session("bad").GetUserInfo(ctx)
	if !errors.Is(err, adapter.ErrTokenRejected) {
		t.Errorf("err = %v; want ErrTokenRejected", err)
	}
}

func TestRejectedTokenNotRetried(t *testing.T) {
	var userCalls, gachaCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc(pathUserInfo, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&userCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc(pathGachaRecord, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&gachaCalls, 1)
		w.WriteHeader(http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	req := httpclient.NewRequester(&http.Client{Timeout: 5 * time.Second}, httpclient.NewGate(5),
		httpclient.RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, logger)
	sess := NewOfficialClient(&config.ChannelConfig{GameBaseURL: srv.URL, AccountBaseURL: srv.URL}, req, logger).Session("bad")

	_, err := sess.GetUserInfo(context.Background())
	if !errors.Is(err, adapter.ErrTokenRejected) {
		t.Fatalf("err = %v; want ErrTokenRejected", err)
	}
	if got := atomic.LoadInt32(&userCalls); got != 1 {
		t.Errorf("user info calls = %d; want 1", got)
	}

	// 其他接口的非2xx按重试策略重试
	if _, err := sess.GetGachaPage(context.Background(), 1); !errors.Is(err, httpclient.ErrRetriesExhausted) {
		t.Errorf("gacha err = %v; want ErrRetriesExhausted", err)
	}
	if got := atomic.LoadInt32(&gachaCalls); got != 3 {
		t.Errorf("gacha calls = %d; want 3", got)
	}
}

func TestFeeds(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.Close()
	ctx := context.Background()
	s := newTestClient(t, srv.URL, model.ChannelOfficial).Session("good")

	gacha, err := s.GetGachaPage(ctx, 1)
	if err != nil {
		t.Fatalf("GetGachaPage error: %v", err)
	}
	if len(gacha) != 2 || gacha[0].Ts != 200 || gacha[0].Chars[0].Rarity != 5 || !gacha[0].Chars[0].IsNew {
		t.Errorf("gacha = %+v", gacha)
	}
	empty, err := s.GetGachaPage(ctx, 2)
	if err != nil || len(empty) != 0 {
		t.Errorf("page 2 = %v, %v", empty, err)
	}

	diamonds, err := s.GetDiamondPage(ctx, 1)
	if err != nil || len(diamonds) != 1 || diamonds[0].Changes[0].Type != model.PlatformAndroid {
		t.Errorf("diamonds = %+v, %v", diamonds, err)
	}

	pays, err := s.GetPayRecords(ctx)
	if err != nil || len(pays) != 1 || pays[0].PayTime != 1700000000 || pays[0].Amount != 600 {
		t.Errorf("pays = %+v, %v", pays, err)
	}

	gifts, err := s.GetGiftRecords(ctx)
	if err != nil || len(gifts) != 1 || gifts[0].Code != "ABC" {
		t.Errorf("gifts = %+v, %v", gifts, err)
	}

	ok, err := s.ExchangeGift(ctx, "ABC")
	if err != nil || !ok {
		t.Errorf("ExchangeGift = %v, %v", ok, err)
	}
}

func TestRegistryBuildsConfiguredChannels(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	req := httpclient.NewRequester(http.DefaultClient, nil, httpclient.RetryPolicy{}, logger)
	reg := adapter.NewChannelRegistry(map[string]config.ChannelConfig{
		"official": {GameBaseURL: "http://x"},
		"bilibili": {GameBaseURL: "http://y"},
		"steam":    {GameBaseURL: "http://z"},
	}, func(config.ChannelConfig) *httpclient.Requester { return req }, logger)
	if len(reg.Channels()) != 2 {
		t.Fatalf("channels = %v", reg.Channels())
	}
	src, err := reg.Source(model.ChannelBilibili, "t")
	if err != nil || src.Channel() != model.ChannelBilibili {
		t.Errorf("Source = %v, %v", src, err)
	}
}

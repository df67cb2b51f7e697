package arknights

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"GachaSync/internal/adapter"
	"GachaSync/internal/config"
	"GachaSync/internal/interfaces"
	"GachaSync/internal/model"
	"GachaSync/internal/utils/httpclient"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	pathUserInfo      = "/u8/user/info/v1/basic"
	pathPayRecord     = "/u8/pay/v1/recent"
	pathGachaRecord   = "/user/api/inquiry/gacha"
	pathDiamondRecord = "/user/api/inquiry/diamond"
	pathGiftRecord    = "/user/api/gift/getExchangeLog"
	pathGiftExchange  = "/user/api/gift/exchange"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36"
)

func init() {
	adapter.Register(model.ChannelOfficial, NewOfficialClient)
	adapter.Register(model.ChannelBilibili, NewBilibiliClient)
}

// envelope 接口统一外层：游戏侧使用 code，账号侧使用 status
type envelope[T any] struct {
	Code   *int   `json:"code"`
	Status *int   `json:"status"`
	Msg    string `json:"msg"`
	Data   T      `json:"data"`
}

func (e envelope[T]) failed() bool {
	if e.Code != nil && *e.Code != 0 && *e.Code != 200 {
		return true
	}
	return e.Status != nil && *e.Status != 0
}

type pageData[T any] struct {
	List []T `json:"list"`
}

// Client 明日方舟官方接口客户端，官服与B服仅渠道ID和账号侧请求体不同
type Client struct {
	cfg     *config.ChannelConfig
	req     *httpclient.Requester
	userReq *httpclient.Requester // Token校验，4xx 不重试
	logger  *logrus.Logger
	channel model.Channel
}

// NewOfficialClient 官服
func NewOfficialClient(cfg *config.ChannelConfig, req *httpclient.Requester, logger *logrus.Logger) interfaces.ChannelClient {
	return &Client{cfg: cfg, req: req, userReq: req.FailFast(), logger: logger, channel: model.ChannelOfficial}
}

// NewBilibiliClient B服
func NewBilibiliClient(cfg *config.ChannelConfig, req *httpclient.Requester, logger *logrus.Logger) interfaces.ChannelClient {
	return &Client{cfg: cfg, req: req, userReq: req.FailFast(), logger: logger, channel: model.ChannelBilibili}
}

func (c *Client) Channel() model.Channel { return c.channel }

func (c *Client) Session(token string) interfaces.HistorySource {
	return &session{client: c, token: token}
}

type session struct {
	client *Client
	token  string
}

func (s *session) Channel() model.Channel { return s.client.channel }

// accountPayload 账号侧接口的请求体
func (s *session) accountPayload() map[string]interface{} {
	if s.client.channel == model.ChannelBilibili {
		return map[string]interface{}{"token": s.token}
	}
	return map[string]interface{}{
		"appId":           1,
		"channelMasterId": 1,
		"channelToken":    map[string]string{"token": s.token},
	}
}

func (s *session) gameURL(path string, page int) string {
	q := url.Values{}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	q.Set("token", s.token)
	q.Set("channelId", fmt.Sprint(int(s.client.channel)))
	return strings.TrimRight(s.client.cfg.GameBaseURL, "/") + path + "?" + q.Encode()
}

func (s *session) accountURL(path string) string {
	return strings.TrimRight(s.client.cfg.AccountBaseURL, "/") + path
}

// GetUserInfo 校验Token并获取UID；4xx或缺少UID视为Token失效
func (s *session) GetUserInfo(ctx context.Context) (*model.UserInfo, error) {
	var resp envelope[*model.UserInfo]
	err := s.client.userReq.PostJSON(ctx, s.accountURL(pathUserInfo), s.accountPayload(), nil, &resp)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return nil, fmt.Errorf("%w: %v", adapter.ErrTokenRejected, err)
		}
		return nil, fmt.Errorf("获取用户信息失败: %w", err)
	}
	if resp.failed() || resp.Data == nil || resp.Data.UID == "" {
		return nil, fmt.Errorf("%w: %s", adapter.ErrTokenRejected, resp.Msg)
	}
	return resp.Data, nil
}

func (s *session) GetGachaPage(ctx context.Context, page int) ([]model.RawGacha, error) {
	var resp envelope[pageData[model.RawGacha]]
	if err := s.client.req.GetJSON(ctx, s.gameURL(pathGachaRecord, page), &resp); err != nil {
		return nil, fmt.Errorf("获取寻访记录第%d页失败: %w", page, err)
	}
	if resp.failed() {
		return nil, fmt.Errorf("获取寻访记录第%d页失败: %s", page, resp.Msg)
	}
	return resp.Data.List, nil
}

func (s *session) GetDiamondPage(ctx context.Context, page int) ([]model.RawDiamond, error) {
	var resp envelope[pageData[model.RawDiamond]]
	if err := s.client.req.GetJSON(ctx, s.gameURL(pathDiamondRecord, page), &resp); err != nil {
		return nil, fmt.Errorf("获取源石记录第%d页失败: %w", page, err)
	}
	if resp.failed() {
		return nil, fmt.Errorf("获取源石记录第%d页失败: %s", page, resp.Msg)
	}
	return resp.Data.List, nil
}

func (s *session) GetPayRecords(ctx context.Context) ([]model.RawPay, error) {
	var resp envelope[[]model.RawPay]
	if err := s.client.req.PostJSON(ctx, s.accountURL(pathPayRecord), s.accountPayload(), nil, &resp); err != nil {
		return nil, fmt.Errorf("获取充值记录失败: %w", err)
	}
	if resp.failed() {
		return nil, fmt.Errorf("获取充值记录失败: %s", resp.Msg)
	}
	return resp.Data, nil
}

func (s *session) GetGiftRecords(ctx context.Context) ([]model.RawGift, error) {
	var resp envelope[[]model.RawGift]
	if err := s.client.req.GetJSON(ctx, s.gameURL(pathGiftRecord, 0), &resp); err != nil {
		return nil, fmt.Errorf("获取礼包兑换记录失败: %w", err)
	}
	if resp.failed() {
		return nil, fmt.Errorf("获取礼包兑换记录失败: %s", resp.Msg)
	}
	return resp.Data, nil
}

// ExchangeGift 兑换礼包码，接口要求请求头与Cookie携带同一个csrf token
func (s *session) ExchangeGift(ctx context.Context, code string) (bool, error) {
	csrf := strings.ReplaceAll(uuid.NewString(), "-", "")
	header := http.Header{}
	header.Set("User-Agent", userAgent)
	header.Set("X-Csrf-Token", csrf)
	header.Set("Cookie", "csrf_token="+csrf)
	payload := map[string]interface{}{
		"giftCode":  code,
		"token":     s.token,
		"channelId": int(s.client.channel),
	}
	var resp envelope[interface{}]
	if err := s.client.req.PostJSON(ctx, strings.TrimRight(s.client.cfg.GameBaseURL, "/")+pathGiftExchange, payload, header, &resp); err != nil {
		return false, fmt.Errorf("兑换礼包码失败: %w", err)
	}
	ok := resp.Code != nil && *resp.Code == 200
	s.client.logger.WithFields(logrus.Fields{
		"channel": s.client.channel,
		"code":    code,
		"success": ok,
		"msg":     resp.Msg,
	}).Debug("礼包码兑换结果")
	return ok, nil
}

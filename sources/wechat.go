package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pevans/dailybrief/digest"
)

// DefaultWeChatEndpoint is the official-account backend's article list API.
const DefaultWeChatEndpoint = "https://mp.weixin.qq.com/cgi-bin/appmsg"

// DefaultUserAgent is sent with every upstream request.
const DefaultUserAgent = "Mozilla/5.0 AppleWebKit/537.36 Chrome/132.0.0.0 Safari/537.36"

// WeChatConfig holds the credentials and endpoint for the official-account
// backend.
type WeChatConfig struct {
	Endpoint  string
	Token     string
	Cookie    string
	UserAgent string
}

// WeChatClient searches an official account's published articles.
type WeChatClient struct {
	config     WeChatConfig
	httpClient *http.Client
	now        func() time.Time
}

// appMsgResponse is the JSON shape returned by the list_ex action.
type appMsgResponse struct {
	AppMsgCnt  int                `json:"app_msg_cnt"`
	AppMsgList []digest.Candidate `json:"app_msg_list"`
	BaseResp   *struct {
		Ret    int    `json:"ret"`
		ErrMsg string `json:"err_msg"`
	} `json:"base_resp"`
}

// NewWeChatClient creates a client. A nil httpClient gets a 10 second
// timeout.
func NewWeChatClient(config WeChatConfig, httpClient *http.Client) *WeChatClient {
	if config.Endpoint == "" {
		config.Endpoint = DefaultWeChatEndpoint
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &WeChatClient{
		config:     config,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// FetchPosts runs a title search against the account in q. A non-200 status
// or an unparseable body is an error; an upstream failure code is reported
// through Result.OK.
func (c *WeChatClient) FetchPosts(ctx context.Context, q Query) (*Result, error) {
	params := url.Values{}
	params.Set("action", "list_ex")
	params.Set("fakeid", q.Account.SourceID)
	params.Set("query", q.Text)
	params.Set("begin", strconv.Itoa(q.Begin))
	params.Set("count", strconv.Itoa(q.Count))
	params.Set("type", "9")
	params.Set("need_author_name", "1")
	params.Set("token", c.config.Token)
	params.Set("lang", "zh_CN")
	params.Set("f", "json")
	params.Set("ajax", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Cookie", c.config.Cookie)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", c.referer())
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrSourceUnavailable, resp.StatusCode, body)
	}

	var data appMsgResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrSourceUnavailable, err)
	}

	result := &Result{
		Posts: data.AppMsgList,
		Total: data.AppMsgCnt,
	}
	if result.Posts == nil {
		result.Posts = []digest.Candidate{}
	}

	switch {
	case data.BaseResp == nil:
		result.Error = "missing base_resp"
	case data.BaseResp.Ret != 0:
		result.Error = data.BaseResp.ErrMsg
		if result.Error == "" {
			result.Error = "ret " + strconv.Itoa(data.BaseResp.Ret)
		}
	default:
		result.OK = true
	}

	return result, nil
}

// referer mimics the editor page the backend expects requests to come from.
func (c *WeChatClient) referer() string {
	params := url.Values{}
	params.Set("t", "media/appmsg_edit_v2")
	params.Set("action", "edit")
	params.Set("isNew", "1")
	params.Set("type", "10")
	params.Set("token", c.config.Token)
	params.Set("lang", "zh_CN")
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))

	return DefaultWeChatEndpoint + "?" + params.Encode()
}

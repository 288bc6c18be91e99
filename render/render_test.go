package render

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"testing"
	"time"

	"github.com/pevans/dailybrief/digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestRecord() digest.Record {
	return digest.Record{
		Date:      "2024-03-05",
		News:      []string{"民政部宣布新政策", "宇树科技发布 H2 仿生人形机器人", "统计局：GDP 同比增长 5.2%"},
		Tip:       "相信自己",
		Created:   "2024/03/05 07:30:00",
		CreatedAt: 1709595000000,
		Updated:   "2024/03/05 07:30:00",
		UpdatedAt: 1709595000000,
	}
}

// fakeBrowser records lifecycle calls.
type fakeBrowser struct {
	startErr   error
	captureErr error
	png        []byte

	starts   int
	captures int
	closes   int
	markup   string
	selector string
}

func (f *fakeBrowser) Start(ctx context.Context) error {
	f.starts++
	return f.startErr
}

func (f *fakeBrowser) Capture(ctx context.Context, markup, selector string) ([]byte, error) {
	f.captures++
	f.markup = markup
	f.selector = selector
	return f.png, f.captureErr
}

func (f *fakeBrowser) Close() error {
	f.closes++
	return nil
}

func TestNewCardData(t *testing.T) {
	data, err := NewCardData(createTestRecord())
	require.NoError(t, err)

	assert.Equal(t, "2024年3月5日", data.Date)
	assert.Equal(t, "星期二", data.Weekday)
	assert.Equal(t, "甲辰年正月廿五", data.Lunar)
	assert.Equal(t, 3, data.Count)
	assert.Equal(t, "2024/03/05 07:30:00", data.Updated)
}

func TestNewCardData_InvalidDate(t *testing.T) {
	rec := createTestRecord()
	rec.Date = "2024/03/05"

	_, err := NewCardData(rec)
	assert.ErrorIs(t, err, digest.ErrInvalidDate)
}

func TestLunarDate(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2024-02-10", "甲辰年正月初一"},
		{"2024-03-05", "甲辰年正月廿五"},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			day, err := time.Parse(digest.DateLayout, tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.want, LunarDate(day))
		})
	}
}

func TestHTML(t *testing.T) {
	rec := createTestRecord()
	rec.News = append(rec.News, "<script>alert(1)</script>")

	markup, err := HTML(rec)
	require.NoError(t, err)

	assert.Contains(t, markup, `id="main"`)
	assert.Contains(t, markup, "2024年3月5日 星期二")
	assert.Contains(t, markup, "农历甲辰年正月廿五")
	assert.Contains(t, markup, "<li>民政部宣布新政策</li>")
	assert.Contains(t, markup, "「相信自己」")
	assert.Contains(t, markup, "共 4 条精选新闻")
	assert.NotContains(t, markup, "<script>alert(1)</script>")
}

func TestHTML_Deterministic(t *testing.T) {
	first, err := HTML(createTestRecord())
	require.NoError(t, err)
	second, err := HTML(createTestRecord())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderer_Lifecycle(t *testing.T) {
	browser := &fakeBrowser{png: []byte("png")}
	r := NewRenderer(browser, time.Second, nil)

	_, err := r.Render(context.Background(), createTestRecord())
	assert.ErrorIs(t, err, ErrNotPrepared)

	require.NoError(t, r.Prepare(context.Background()))
	require.NoError(t, r.Prepare(context.Background()))
	assert.Equal(t, 1, browser.starts, "Prepare is idempotent")

	out, err := r.Render(context.Background(), createTestRecord())
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), out)
	assert.Equal(t, MainSelector, browser.selector)
	assert.Contains(t, browser.markup, "民政部宣布新政策")

	require.NoError(t, r.Destroy())
	require.NoError(t, r.Destroy())
	assert.Equal(t, 1, browser.closes)
}

// TestCapture_DestroysOnFailure verifies the browser is closed when the
// render step fails.
func TestCapture_DestroysOnFailure(t *testing.T) {
	browser := &fakeBrowser{captureErr: errors.New("target crashed")}
	r := NewRenderer(browser, 0, nil)

	_, err := Capture(context.Background(), r, createTestRecord())
	assert.ErrorIs(t, err, ErrRender)
	assert.Equal(t, 1, browser.starts)
	assert.Equal(t, 1, browser.closes)
}

func TestCapture_EmptyScreenshot(t *testing.T) {
	browser := &fakeBrowser{}
	r := NewRenderer(browser, 0, nil)

	_, err := Capture(context.Background(), r, createTestRecord())
	assert.ErrorIs(t, err, ErrRender)
	assert.Equal(t, 1, browser.closes)
}

func TestCapture_StartFailure(t *testing.T) {
	browser := &fakeBrowser{startErr: errors.New("no chrome")}
	r := NewRenderer(browser, 0, nil)

	_, err := Capture(context.Background(), r, createTestRecord())
	assert.ErrorIs(t, err, ErrRender)
	assert.Equal(t, 0, browser.captures)
	assert.Equal(t, 0, browser.closes, "Nothing to close when the browser never started")
}

func TestChromeBrowser_NotStarted(t *testing.T) {
	b := NewChromeBrowser(ChromeOptions{})

	_, err := b.Capture(context.Background(), "<div></div>", MainSelector)
	assert.Error(t, err)
	assert.NoError(t, b.Close())
}

// TestChromeBrowser_Capture renders a real card. It needs a Chrome binary
// on PATH.
func TestChromeBrowser_Capture(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	path := FindChrome()
	if path == "" {
		t.Skip("no Chrome binary found")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	r := NewRenderer(NewChromeBrowser(ChromeOptions{
		ExecPath:    path,
		Width:       2000,
		Height:      1200,
		DeviceScale: 1,
		Headless:    true,
	}), 30*time.Second, nil)

	out, err := Capture(ctx, r, createTestRecord())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Positive(t, img.Bounds().Dx())
	assert.Positive(t, img.Bounds().Dy())
}

package tiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"time"

	"deepspace-observatory/src/core/metrics"
	"deepspace-observatory/src/core/utils"

	_ "image/gif"  // 注册GIF解码器
	_ "image/jpeg" // 注册JPEG解码器
	_ "image/png"  // 注册PNG解码器

	_ "golang.org/x/image/webp" // 注册WEBP解码器
	"golang.org/x/sync/singleflight"
)

const (
	maxTileBytes     = 8 * 1024 * 1024
	maxManifestBytes = 1024 * 1024
)

// ErrTileNotFound 瓦片服务返回404
var ErrTileNotFound = errors.New("tile not found")

// FetcherConfig 瓦片下载配置
type FetcherConfig struct {
	Timeout   time.Duration
	CacheSize int
	UserAgent string
}

// Fetcher 瓦片和清单下载器，带有界缓存和重复请求合并
type Fetcher struct {
	config     FetcherConfig
	httpClient *http.Client
	logger     *utils.Logger
	group      singleflight.Group

	mu        sync.Mutex
	cache     map[string]image.Image
	order     []string
	manifests map[string]*Pyramid // 已解析的DZI清单，按清单URL索引
}

// NewFetcher 创建下载器
func NewFetcher(config FetcherConfig, logger *utils.Logger) *Fetcher {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 256
	}
	if config.UserAgent == "" {
		config.UserAgent = "DeepSpace-Observatory/1.0"
	}
	return &Fetcher{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// 限制重定向次数为3次
				if len(via) >= 3 {
					return fmt.Errorf("停止重定向：超过最大重定向次数")
				}
				return nil
			},
		},
		logger:    logger,
		cache:     make(map[string]image.Image),
		manifests: make(map[string]*Pyramid),
	}
}

// Resolve 把瓦片源解析为金字塔，清单类型需要下载
func (f *Fetcher) Resolve(ctx context.Context, src TileSource) (*Pyramid, error) {
	switch s := src.(type) {
	case StructuredPyramid:
		return FromStructured(s)
	case RemoteManifest:
		return f.manifest(ctx, s.URL)
	case nil:
		return nil, errors.New("瓦片源为空")
	default:
		return nil, fmt.Errorf("未知的瓦片源类型: %T", src)
	}
}

// manifest 下载并解析DZI清单，成功结果缓存，失败不缓存
func (f *Fetcher) manifest(ctx context.Context, url string) (*Pyramid, error) {
	f.mu.Lock()
	p, ok := f.manifests[url]
	f.mu.Unlock()
	if ok {
		return p, nil
	}

	ch := f.group.DoChan("manifest:"+url, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.config.Timeout)
		defer cancel()

		data, err := f.get(fetchCtx, url, maxManifestBytes)
		if err != nil {
			return nil, fmt.Errorf("下载DZI清单失败: %w", err)
		}
		p, err := ParseDZI(url, data)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.manifests[url] = p
		f.mu.Unlock()
		return p, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Pyramid), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Tile 获取并解码一个瓦片，优先读缓存
func (f *Fetcher) Tile(ctx context.Context, url string) (image.Image, error) {
	if img, ok := f.cached(url); ok {
		metrics.TileFetchTotal.WithLabelValues("cache").Inc()
		return img, nil
	}

	// 同一瓦片被多个会话共享，下载不随某一个调用方取消
	ch := f.group.DoChan(url, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.config.Timeout)
		defer cancel()

		start := time.Now()
		data, err := f.get(fetchCtx, url, maxTileBytes)
		metrics.TileFetchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.TileFetchTotal.WithLabelValues("error").Inc()
			f.logger.Debug("瓦片下载失败", map[string]interface{}{
				"url":   url,
				"error": err.Error(),
			})
			return nil, err
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			metrics.TileFetchTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("瓦片解码失败: %w", err)
		}
		metrics.TileFetchTotal.WithLabelValues("fetched").Inc()
		f.store(url, img)
		return img, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(image.Image), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Raw 原样下载，用于瓦片代理
func (f *Fetcher) Raw(ctx context.Context, url string) ([]byte, error) {
	return f.get(ctx, url, maxTileBytes)
}

func (f *Fetcher) get(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %v", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", url, ErrTileNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP响应错误: %d %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("响应过大，最大允许: %d bytes", limit)
	}
	return data, nil
}

func (f *Fetcher) cached(url string) (image.Image, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.cache[url]
	return img, ok
}

// store 写入缓存，超过容量时按写入顺序淘汰
func (f *Fetcher) store(url string, img image.Image) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cache[url]; ok {
		return
	}
	f.cache[url] = img
	f.order = append(f.order, url)
	for len(f.order) > f.config.CacheSize {
		oldest := f.order[0]
		f.order = f.order[1:]
		delete(f.cache, oldest)
	}
}

// CacheLen 当前缓存的瓦片数量
func (f *Fetcher) CacheLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cache)
}

package viz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/norasector/lacap/pkg/frame"
	"github.com/norasector/lacap/pkg/timebase"
)

// Views stay live for this long after the last page or image request.
const viewTimeout = time.Second

type ImageContainer struct {
	name string
	data []byte
}

func (ic *ImageContainer) Name() string { return ic.name }
func (ic *ImageContainer) Data() []byte { return ic.data }

type Producer interface {
	Name() string
	GetImage() *ImageContainer
	AddPlotOption(opt PlotOptions)
}

// SnapshotSource lists the frames currently held, in arrival order.
type SnapshotSource interface {
	Snapshot() []*frame.Frame
}

// FrameInfo is the JSON form of a frame header served on /frames.
type FrameInfo struct {
	Sequence        uint64    `json:"sequence"`
	Variant         string    `json:"variant"`
	DeclaredLength  uint16    `json:"declared_length"`
	RateSelector    uint8     `json:"rate_selector"`
	SampleRate      float64   `json:"sample_rate"`
	TriggerIndex    uint16    `json:"trigger_index"`
	TriggerPosition int       `json:"trigger_position"`
	TriggerTime     float64   `json:"trigger_time"`
	PayloadLength   int       `json:"payload_length"`
	ArrivalTime     time.Time `json:"arrival_time"`
}

func NewFrameInfo(f *frame.Frame) FrameInfo {
	return FrameInfo{
		Sequence:        f.Sequence,
		Variant:         f.Variant.String(),
		DeclaredLength:  f.DeclaredLength,
		RateSelector:    f.RateSelector,
		SampleRate:      f.SampleRate,
		TriggerIndex:    f.TriggerIndex,
		TriggerPosition: f.TriggerPosition(),
		TriggerTime:     f.TriggerTime(),
		PayloadLength:   len(f.Payload),
		ArrivalTime:     f.ArrivalTime,
	}
}

type Server struct {
	images          map[string]map[string]*ImageContainer
	mu              sync.RWMutex
	port            int
	srv             *http.Server
	producerBuckets map[string]map[string]Producer
	frames          SnapshotSource
	updateInterval  time.Duration
	enabled         bool
	lastViewed      map[string]time.Time
}

func NewServer(port int, updateInterval time.Duration) *Server {
	s := &Server{
		images:          make(map[string]map[string]*ImageContainer),
		producerBuckets: make(map[string]map[string]Producer),
		port:            port,
		lastViewed:      make(map[string]time.Time),
		updateInterval:  updateInterval,
		enabled:         true,
	}
	s.srv = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: s.Handler()}
	return s
}

func (s *Server) Enable(enable bool) {
	s.mu.Lock()
	s.enabled = enable
	s.mu.Unlock()
}

func (s *Server) SetFrameSource(src SnapshotSource) {
	s.mu.Lock()
	s.frames = src
	s.mu.Unlock()
}

func (s *Server) Register(key string, p Producer) {
	s.mu.Lock()
	bucket, ok := s.producerBuckets[key]
	if !ok {
		bucket = make(map[string]Producer)
		s.producerBuckets[key] = bucket
	}
	bucket[p.Name()] = p
	s.mu.Unlock()
}

// Refresh renders every producer of the named bucket.
func (s *Server) Refresh(bucketName string) {
	s.mu.RLock()
	bucket := s.producerBuckets[bucketName]
	producers := make([]Producer, 0, len(bucket))
	for _, p := range bucket {
		producers = append(producers, p)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, producer := range producers {
		wg.Add(1)
		go func(p Producer) {
			defer wg.Done()

			img := p.GetImage()
			if img == nil {
				return
			}

			s.mu.Lock()
			mb, ok := s.images[bucketName]
			if !ok {
				mb = make(map[string]*ImageContainer)
				s.images[bucketName] = mb
			}
			mb[img.name] = img
			s.mu.Unlock()
		}(producer)
	}
	wg.Wait()
}

func (s *Server) refreshViewed() {
	s.mu.RLock()
	if !s.enabled {
		s.mu.RUnlock()
		return
	}
	viewed := make([]string, 0, len(s.lastViewed))
	for bucketName, at := range s.lastViewed {
		if time.Since(at) < viewTimeout {
			viewed = append(viewed, bucketName)
		}
	}
	s.mu.RUnlock()

	for _, bucketName := range viewed {
		s.Refresh(bucketName)
	}
}

func (s *Server) markViewed(bucket string) {
	s.mu.Lock()
	s.lastViewed[bucket] = time.Now()
	s.mu.Unlock()
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		ticker := time.NewTicker(s.updateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refreshViewed()
			}
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("viz server shutdown")
		}
	}()

	log.Info().Int("port", s.port).Msg("starting viz server")

	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Handler() http.Handler {
	handler := httprouter.New()
	handler.GET("/", s.handleIndex)
	handler.GET("/view/:bucket", s.handleView)
	handler.GET("/img/:bucket/:img", s.handleImage)
	handler.GET("/frames", s.handleFrames)
	return handler
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.mu.RLock()
	keys := s.bucketKeys()
	s.mu.RUnlock()

	if len(keys) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Location", "/view/"+url.PathEscape(keys[0]))
	w.WriteHeader(http.StatusFound)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	bucket := params.ByName("bucket")

	s.mu.RLock()
	itemsForBucket, ok := s.producerBuckets[bucket]
	s.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	s.markViewed(bucket)
	s.Refresh(bucket)

	s.mu.RLock()
	defer s.mu.RUnlock()

	w.Header().Add("Content-Type", "text/html")
	w.Write([]byte(`<html><head><title>lacap</title></head>`))

	w.Write([]byte(fmt.Sprintf(`
		<script type="text/javascript">
			var toggleRefresh = true;
			function toggleOn() {
				toggleRefresh = !toggleRefresh;
			}

			function changeBucket() {
				var val = document.getElementById('bucketSelector').value;
				window.location.href = '/view/' + val;
			}
			window.onload = function() {
				for (var i = 0; i < %d; i++) {
					var img = document.getElementById('graph-' + i);
					setInterval(function(image) {
						if (toggleRefresh) {
							image.src = image.src.split("?")[0] + "?" + new Date().getTime();
						}
					}, %d, img);
				}
			}
		</script>`, len(itemsForBucket), s.updateInterval.Milliseconds())))
	w.Write([]byte(`<body style='background-color: black'>`))

	w.Write([]byte(`<select id="bucketSelector" onchange="changeBucket()">`))
	for _, bucketName := range s.bucketKeys() {
		selected := ""
		if bucketName == bucket {
			selected = " selected"
		}
		w.Write([]byte(fmt.Sprintf(`<option value="%s"%s>%s</option>`, bucketName, selected, bucketName)))
	}
	w.Write([]byte(`</select>`))
	w.Write([]byte(`<button onclick="toggleOn()">Refresh?</button>`))

	keys := make([]string, 0, len(itemsForBucket))
	for key := range itemsForBucket {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	w.Write([]byte(`<div style="display: flex; flex-direction: column">`))
	for idx, key := range keys {
		w.Write([]byte(fmt.Sprintf(`<div><img id="graph-%d" src="/img/%s/%s?%d" /></div>`,
			idx, bucket, key, time.Now().UnixMicro())))
	}
	w.Write([]byte(`</div></body></html>`))
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	bucketName := params.ByName("bucket")
	s.markViewed(bucketName)

	s.mu.RLock()
	img, ok := s.images[bucketName][params.ByName("img")]
	s.mu.RUnlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Add("Content-Type", "image/png")
	w.Write(img.data)
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.mu.RLock()
	src := s.frames
	s.mu.RUnlock()

	infos := []FrameInfo{}
	if src != nil {
		for _, f := range src.Snapshot() {
			infos = append(infos, NewFrameInfo(f))
		}
	}

	w.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		log.Warn().Err(err).Msg("could not encode frames")
	}
}

// bucketKeys must be called with s.mu held.
func (s *Server) bucketKeys() []string {
	keys := make([]string, 0, len(s.producerBuckets))
	for key := range s.producerBuckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Describe is a short human summary of a frame, shown in plot titles and logs.
func Describe(f *frame.Frame) string {
	return fmt.Sprintf("#%d %s trigger %d", f.Sequence, timebase.FormatRate(f.SampleRate), f.TriggerPosition())
}

package downloader

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// fakeWorker is a scripted Worker.
type fakeWorker struct {
	mu sync.Mutex

	mediaJSON   string
	dumpErr     error
	formatTable string
	formatsErr  error

	// download is called for every Download; nil succeeds immediately.
	download func(ctx context.Context, args []string, onProgress func(Progress)) error

	dumps     [][]string
	downloads [][]string
}

func (w *fakeWorker) Download(ctx context.Context, args []string, onProgress func(Progress)) error {
	w.mu.Lock()
	w.downloads = append(w.downloads, args)
	fn := w.download
	w.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, args, onProgress)
}

func (w *fakeWorker) DumpJSON(ctx context.Context, args []string) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dumps = append(w.dumps, args)
	if w.dumpErr != nil {
		return nil, w.dumpErr
	}
	return []byte(w.mediaJSON), nil
}

func (w *fakeWorker) ListFormats(ctx context.Context, url string) (string, error) {
	return w.formatTable, w.formatsErr
}

func (w *fakeWorker) downloadCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.downloads)
}

func newRequest(channel string, modify func(s *domain.Settings)) Request {
	settings := domain.DefaultSettings()
	if modify != nil {
		modify(&settings)
	}
	return Request{
		Entry: &domain.ScheduleEntry{
			APIID:       "abc123",
			Channel:     channel,
			Title:       "Film",
			DownloadURL: "https://example.org/film",
		},
		Dir:      "/downloads/Film",
		Settings: settings,
	}
}

// ============================================================================
// Default strategy
// ============================================================================

func TestPlanDefault(t *testing.T) {
	tests := []struct {
		name   string
		modify func(s *domain.Settings)
		want   []string
	}{
		{
			name: "defaults",
			want: []string{"https://example.org/film", "-P", "/downloads/Film", "--limit-rate=1.5M", "--all-subs"},
		},
		{
			name: "resolution limit",
			modify: func(s *domain.Settings) {
				s.DownloadResolutionLimit = "720"
			},
			want: []string{"https://example.org/film", "-P", "/downloads/Film", "-f", "best*[height<=720]", "--limit-rate=1.5M", "--all-subs"},
		},
		{
			name: "no rate limit and no subtitles",
			modify: func(s *domain.Settings) {
				s.MaxDownloadRate = 0
				s.IncludeSubtitles = false
			},
			want: []string{"https://example.org/film", "-P", "/downloads/Film"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := planDefault(context.Background(), &fakeWorker{}, newRequest("phoenix", tt.modify))
			if err != nil {
				t.Fatalf("planDefault failed: %v", err)
			}
			if len(plan.Parts) != 1 {
				t.Fatalf("expected 1 part, got %d", len(plan.Parts))
			}
			if !slices.Equal(plan.Parts[0].Args, tt.want) {
				t.Errorf("args = %q, want %q", plan.Parts[0].Args, tt.want)
			}
			if plan.Script != "" {
				t.Error("default plan should not carry a script")
			}
		})
	}
}

// ============================================================================
// ZDF strategy
// ============================================================================

func TestPlanZDF_MultipleAudioLanguages(t *testing.T) {
	worker := &fakeWorker{mediaJSON: `{"formats":[
		{"format_id":"hls-720","vcodec":"avc1","language":"de","height":720},
		{"format_id":"audio-de-1","vcodec":"none","language":"de","height":null},
		{"format_id":"audio-de-2","vcodec":"none","language":"de"},
		{"format_id":"audio-en-1","vcodec":"none","language":"en"}
	]}`}
	req := newRequest("zdf", func(s *domain.Settings) { s.PreferredDownloadLanguage = "en" })

	plan, err := planZDF(context.Background(), worker, req)
	if err != nil {
		t.Fatalf("planZDF failed: %v", err)
	}

	args := plan.Parts[0].Args
	if !slices.Contains(args, "--audio-multistreams") {
		t.Errorf("args should enable multiple audio streams: %q", args)
	}
	i := slices.Index(args, "-f")
	if i < 0 {
		t.Fatalf("no format selector in %q", args)
	}
	want := "best*[height<=9999]+ba[language=en]+ba[language=de]"
	if args[i+1] != want {
		t.Errorf("selector = %q, want %q", args[i+1], want)
	}
	if !strings.Contains(plan.Script, "-metadata:s:a:0 language=eng") ||
		!strings.Contains(plan.Script, "-metadata:s:a:1 language=deu") {
		t.Errorf("script does not tag audio streams in order:\n%s", plan.Script)
	}
	if len(worker.dumps) != 1 || worker.dumps[0][0] != req.Entry.DownloadURL {
		t.Errorf("unexpected probe calls %q", worker.dumps)
	}
}

func TestPlanZDF_NoSeparateAudio(t *testing.T) {
	worker := &fakeWorker{mediaJSON: `{"formats":[
		{"format_id":"hls-360","vcodec":"avc1","language":"de","height":360},
		{"format_id":"hls-720","vcodec":"avc1","language":"de","height":720},
		{"format_id":"hls-1080","vcodec":"avc1","language":"de","height":1080}
	]}`}
	req := newRequest("3sat", func(s *domain.Settings) { s.DownloadResolutionLimit = "720" })

	plan, err := planZDF(context.Background(), worker, req)
	if err != nil {
		t.Fatalf("planZDF failed: %v", err)
	}

	args := plan.Parts[0].Args
	if slices.Contains(args, "--audio-multistreams") {
		t.Error("single audio should not enable multiple streams")
	}
	if i := slices.Index(args, "-f"); i < 0 || args[i+1] != "best*[height<=720]" {
		t.Errorf("expected resolution selector in %q", args)
	}
	if !strings.Contains(plan.Script, "language=deu") {
		t.Errorf("script should tag the German track:\n%s", plan.Script)
	}
}

func TestPlanZDF_ProbeFailure(t *testing.T) {
	worker := &fakeWorker{dumpErr: errors.New("HTTP Error 404")}
	if _, err := planZDF(context.Background(), worker, newRequest("zdf", nil)); err == nil {
		t.Error("expected error when the probe fails")
	}
}

// ============================================================================
// Arte strategy
// ============================================================================

func arteTable() string {
	rule := strings.Repeat("-", 90)
	return strings.Join([]string{
		"[info] Available formats for 110342-012-A:",
		"ID                          EXT RESOLUTION | FILESIZE",
		rule,
		"aud_de                      mp4 audio only |  ~ 80MiB [de] Deutsch",
		"aud_ad_Audiodeskription_    mp4 audio only |  ~ 80MiB [de] Deutsch",
		"aud_fr                      mp4 audio only |  ~ 80MiB [fr] Französisch",
		"aud_ks_Klare_Sprache_       mp4 audio only |  ~ 80MiB [de] Deutsch",
		"v720                        mp4 1280x720   | ~ 700MiB video only",
	}, "\n")
}

func TestArteAudioTracks(t *testing.T) {
	tracks := arteAudioTracks(arteTable(), true, true)
	var ids []string
	for _, tr := range tracks {
		ids = append(ids, tr.ID)
	}
	want := []string{"aud_de", "aud_fr", "aud_ks_Klare_Sprache_", "aud_ad_Audiodeskription_"}
	if !slices.Equal(ids, want) {
		t.Errorf("tracks = %q, want %q", ids, want)
	}

	tracks = arteAudioTracks(arteTable(), false, false)
	if len(tracks) != 2 {
		t.Errorf("expected special tracks to be filtered, got %+v", tracks)
	}

	if got := arteAudioTracks("no table here", true, true); got != nil {
		t.Errorf("expected no tracks without a table, got %+v", got)
	}
}

func TestPlanArte_PreferredLanguageFirst(t *testing.T) {
	worker := &fakeWorker{formatTable: arteTable()}
	req := newRequest("arte", func(s *domain.Settings) {
		s.PreferredDownloadLanguage = "fr"
		s.IncludeAudioTranscription = false
		s.IncludeClearLanguage = false
	})

	plan, err := planArte(context.Background(), worker, req)
	if err != nil {
		t.Fatalf("planArte failed: %v", err)
	}

	args := plan.Parts[0].Args
	i := slices.Index(args, "-f")
	if i < 0 {
		t.Fatalf("no format selector in %q", args)
	}
	if want := "best*[height<=9999]+aud_fr+aud_de"; args[i+1] != want {
		t.Errorf("selector = %q, want %q", args[i+1], want)
	}
	if !slices.Contains(args, "--audio-multistreams") {
		t.Error("expected multiple audio streams")
	}
	if n := strings.Count(strings.Join(args, " "), " -f "); n != 1 {
		t.Errorf("format selector appears %d times in %q", n, args)
	}
}

// ============================================================================
// ARD strategy
// ============================================================================

const ardMedia = `{"formats":[
	{"format_id":"ov-720","language":"ov","height":720},
	{"format_id":"ad-360","language":"deu-audio-description","height":360},
	{"format_id":"ad-720","language":"deu-audio-description","height":720},
	{"format_id":"de-360","language":"deu","height":360},
	{"format_id":"de-720","language":"deu","height":720},
	{"format_id":"de-1080","language":"deu","height":1080}
]}`

func TestPlanARD_MultiPart(t *testing.T) {
	worker := &fakeWorker{mediaJSON: ardMedia}
	req := newRequest("das_erste", func(s *domain.Settings) { s.DownloadResolutionLimit = "720" })

	plan, err := planARD(context.Background(), worker, req)
	if err != nil {
		t.Fatalf("planARD failed: %v", err)
	}

	var files []string
	for _, p := range plan.Parts {
		files = append(files, p.File)
	}
	want := []string{"de-720.deu.mp4", "ov-720.ov.mp4", "ad-360.deu-audio-description.mp4"}
	if !slices.Equal(files, want) {
		t.Errorf("files = %q, want %q", files, want)
	}

	video := plan.Parts[0].Args
	if !slices.Contains(video, "--limit-rate=1.5M") || !slices.Contains(video, "--all-subs") {
		t.Errorf("video part args incomplete: %q", video)
	}
	if slices.Contains(plan.Parts[1].Args, "--all-subs") {
		t.Error("audio parts should not fetch subtitles")
	}

	for _, want := range []string{"-map 0:v:0", "-map 2:a:0", "language=deu", "(Audiodeskription)", "(Originalton)", "'Film.mkv'"} {
		if !strings.Contains(plan.Script, want) {
			t.Errorf("script missing %q:\n%s", want, plan.Script)
		}
	}
}

func TestPlanARD_WithoutAudioDescription(t *testing.T) {
	worker := &fakeWorker{mediaJSON: ardMedia}
	req := newRequest("br", func(s *domain.Settings) { s.IncludeAudioTranscription = false })

	plan, err := planARD(context.Background(), worker, req)
	if err != nil {
		t.Fatalf("planARD failed: %v", err)
	}
	if len(plan.Parts) != 2 {
		t.Errorf("expected 2 parts, got %d", len(plan.Parts))
	}
	if plan.Parts[0].File != "de-1080.deu.mp4" {
		t.Errorf("video file = %q, want the best unrestricted format", plan.Parts[0].File)
	}
}

func TestPlanARD_NoFormats(t *testing.T) {
	worker := &fakeWorker{mediaJSON: `{"formats":[]}`}
	_, err := planARD(context.Background(), worker, newRequest("ard", nil))
	if !errors.Is(err, domain.ErrNoFormat) {
		t.Errorf("expected ErrNoFormat, got %v", err)
	}
}

// ============================================================================
// Registry
// ============================================================================

func TestRegistry_For(t *testing.T) {
	r := NewRegistry()

	worker := &fakeWorker{mediaJSON: `{"formats":[]}`}
	if _, err := r.For("Das Erste").Plan(context.Background(), worker, newRequest("das_erste", nil)); !errors.Is(err, domain.ErrNoFormat) {
		t.Errorf("Das Erste should use the ARD strategy, got %v", err)
	}

	worker = &fakeWorker{}
	plan, err := r.For("phoenix").Plan(context.Background(), worker, newRequest("phoenix", nil))
	if err != nil {
		t.Fatalf("default strategy failed: %v", err)
	}
	if len(worker.dumps) != 0 || len(plan.Parts) != 1 {
		t.Error("unknown channels should use the default strategy without probing")
	}

	r.Register(StrategyFunc(func(ctx context.Context, w Worker, req Request) (*Plan, error) {
		return nil, errors.New("custom")
	}), "phoenix")
	if _, err := r.For("phoenix").Plan(context.Background(), worker, newRequest("phoenix", nil)); err == nil || err.Error() != "custom" {
		t.Errorf("registered strategy not used, got %v", err)
	}
}

func TestDescribeTrack(t *testing.T) {
	tests := []struct {
		code, raw string
		want      trackTag
	}{
		{"de", "audio-de", trackTag{Lang3: "deu", Title: "Deutsch"}},
		{"en", "aud_VO_en", trackTag{Lang3: "eng", Title: "Englisch (Originalton)"}},
		{"de", "aud_Audiodeskription_", trackTag{Lang3: "deu", Title: "Deutsch (Audiodeskription)"}},
		{"und", "ov", trackTag{Lang3: "und", Title: trackTagTitle("und") + " (Originalton)"}},
		{"", "", trackTag{Lang3: "und", Title: ""}},
	}

	for _, tt := range tests {
		if got := describeTrack(tt.code, tt.raw); got != tt.want {
			t.Errorf("describeTrack(%q, %q) = %+v, want %+v", tt.code, tt.raw, got, tt.want)
		}
	}
}

func trackTagTitle(code string) string {
	return describeTrack(code, "").Title
}

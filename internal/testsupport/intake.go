package testsupport

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// ReferenceField is the session field the fake intake echoes back as the
// upload key.
const ReferenceField = "x-amz-meta-upscan-reference"

// Upload records one multipart submission received by IntakeServer.
type Upload struct {
	FileName string
	Fields   []string
	Size     int
}

// IntakeServer is an httptest server playing the collaborator initiation
// endpoint, the intake submission target and the status endpoint.
type IntakeServer struct {
	*httptest.Server

	mu          sync.Mutex
	initiations int
	uploads     []Upload
	errorCodes  map[string]string
	failed      map[string]string
	polling     bool
}

// NewIntakeServer starts a fake intake service. With polling set, the
// submission answers 202 and outcomes are served by the status endpoint;
// otherwise the submission redirects with key or errorCode.
func NewIntakeServer(t testing.TB, polling bool) *IntakeServer {
	t.Helper()
	s := &IntakeServer{
		errorCodes: map[string]string{},
		failed:     map[string]string{},
		polling:    polling,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /devhub-support/ticket/{ticket}/initiate-upscan", s.initiate)
	mux.HandleFunc("POST /upscan/upload", s.upload)
	mux.HandleFunc("GET /upscan/complete", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /upscan/status/{reference}", s.status)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// InitiateURL returns the initiation endpoint template.
func (s *IntakeServer) InitiateURL() string {
	return s.URL + "/devhub-support/ticket/{ticket}/initiate-upscan"
}

// StatusURL returns the status endpoint template.
func (s *IntakeServer) StatusURL() string {
	return s.URL + "/upscan/status/{reference}"
}

// RejectFile makes submissions of fileName fail with code.
func (s *IntakeServer) RejectFile(fileName, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCodes[fileName] = code
}

// Initiations returns how many sessions were handed out.
func (s *IntakeServer) Initiations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initiations
}

// Uploads returns the recorded submissions.
func (s *IntakeServer) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func (s *IntakeServer) initiate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.initiations++
	n := s.initiations
	s.mu.Unlock()

	reference := fmt.Sprintf("%s-ref-%d", r.PathValue("ticket"), n)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"reference":%q,"postTarget":"/upscan/upload","formFields":{"acl":"private","key":"uploads/%d","%s":%q,"policy":"cG9saWN5"}}`,
		reference, n, ReferenceField, reference)
}

func (s *IntakeServer) upload(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var (
		record    Upload
		reference string
	)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		record.Fields = append(record.Fields, part.FormName())
		data, _ := io.ReadAll(part)
		if part.FileName() != "" {
			record.FileName = part.FileName()
			record.Size = len(data)
			continue
		}
		if part.FormName() == ReferenceField {
			reference = string(data)
		}
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, record)
	code := s.errorCodes[record.FileName]
	if code != "" {
		s.failed[reference] = code
	}
	polling := s.polling
	s.mu.Unlock()

	if polling {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	query := url.Values{}
	if code != "" {
		query.Set("errorCode", code)
	} else {
		query.Set("key", reference)
	}
	w.Header().Set("Location", "/upscan/complete?"+query.Encode())
	w.WriteHeader(http.StatusSeeOther)
}

func (s *IntakeServer) status(w http.ResponseWriter, r *http.Request) {
	reference := r.PathValue("reference")
	s.mu.Lock()
	code, failed := s.failed[reference]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failed {
		fmt.Fprintf(w, `{"reference":%q,"uploadStatus":"Failed","errorCode":%q}`, reference, code)
		return
	}
	if !strings.Contains(reference, "-ref-") {
		http.NotFound(w, r)
		return
	}
	fmt.Fprintf(w, `{"reference":%q,"uploadStatus":"UploadedSuccessfully"}`, reference)
}

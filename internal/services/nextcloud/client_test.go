package nextcloud_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"linkrelay/internal/services"
	"linkrelay/internal/services/nextcloud"
)

const shareXML = `<?xml version="1.0"?>
<ocs>
 <meta><status>ok</status><statuscode>200</statuscode><message>OK</message></meta>
 <data><id>%s</id><share_type>3</share_type><url>%s</url></data>
</ocs>`

func TestCreateFolderStatuses(t *testing.T) {
	cases := []struct {
		status      int
		wantCreated bool
		wantErr     bool
	}{
		{http.StatusCreated, true, false},
		{http.StatusMethodNotAllowed, false, false},
		{http.StatusConflict, false, true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			var gotPath, gotMethod, gotUser string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotPath = r.URL.Path
				gotUser, _, _ = r.BasicAuth()
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client := nextcloud.NewClient(srv.URL, "relay", "pw", "", srv.Client(), nil)
			created, err := client.CreateFolder(context.Background(), "/КАТАЛОГ/7. Foo")
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if created != tc.wantCreated {
				t.Fatalf("created = %v, want %v", created, tc.wantCreated)
			}
			if gotMethod != "MKCOL" || gotUser != "relay" {
				t.Fatalf("unexpected request %s user=%s", gotMethod, gotUser)
			}
			if gotPath != "/remote.php/dav/files/relay/КАТАЛОГ/7. Foo" {
				t.Fatalf("unexpected path %q", gotPath)
			}
			if tc.wantErr && services.StatusCode(err) != tc.status {
				t.Fatalf("expected status %d in error, got %v", tc.status, err)
			}
		})
	}
}

func TestMoveFolderSendsDestination(t *testing.T) {
	var destination, overwrite string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "MOVE" {
			t.Errorf("unexpected method %s", r.Method)
		}
		destination = r.Header.Get("Destination")
		overwrite = r.Header.Get("Overwrite")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := nextcloud.NewClient(srv.URL, "relay", "pw", "", srv.Client(), nil)
	if err := client.MoveFolder(context.Background(), "/C/old", "/C/new name"); err != nil {
		t.Fatalf("MoveFolder: %v", err)
	}
	if destination != srv.URL+"/remote.php/dav/files/relay/C/new%20name" {
		t.Fatalf("unexpected destination %q", destination)
	}
	if overwrite != "F" {
		t.Fatalf("expected Overwrite F, got %q", overwrite)
	}
}

func TestCreateShareParsesXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ocs/v2.php/apps/files_sharing/api/v1/shares" || r.URL.Query().Get("format") != "xml" {
			t.Errorf("unexpected url %s", r.URL)
		}
		if r.Header.Get("OCS-APIRequest") != "true" || r.Header.Get("requesttoken") != "csrf" {
			t.Errorf("missing OCS headers: %v", r.Header)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		want := map[string]string{"path": "/C/7. Foo", "shareType": "3", "publicUpload": "true", "permissions": "15"}
		for k, v := range want {
			if got := r.PostForm.Get(k); got != v {
				t.Errorf("form %s = %q, want %q", k, got, v)
			}
		}
		fmt.Fprintf(w, shareXML, "17", "https://cloud/s/abc")
	}))
	defer srv.Close()

	client := nextcloud.NewClient(srv.URL, "relay", "pw", "csrf", srv.Client(), nil)
	share, err := client.CreateShare(context.Background(), "/C/7. Foo")
	if err != nil {
		t.Fatalf("CreateShare: %v", err)
	}
	if share.ID != "17" || share.URL != "https://cloud/s/abc" {
		t.Fatalf("unexpected share %+v", share)
	}
}

func TestCreateShareFailures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusForbidden)
		}))
		defer srv.Close()
		_, err := nextcloud.NewClient(srv.URL, "u", "p", "", srv.Client(), nil).CreateShare(context.Background(), "/x")
		if services.StatusCode(err) != http.StatusForbidden {
			t.Fatalf("expected 403 status error, got %v", err)
		}
	})
	t.Run("missing data", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `<ocs><meta><statuscode>404</statuscode><message>Wrong path</message></meta><data/></ocs>`)
		}))
		defer srv.Close()
		_, err := nextcloud.NewClient(srv.URL, "u", "p", "", srv.Client(), nil).CreateShare(context.Background(), "/x")
		if !errors.Is(err, services.ErrRemote) || !strings.Contains(err.Error(), "Wrong path") {
			t.Fatalf("expected decode error, got %v", err)
		}
	})
}

func TestDeleteShare(t *testing.T) {
	var gotPath string
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		gotPath = r.URL.Path
		w.WriteHeader(status)
	}))
	defer srv.Close()

	client := nextcloud.NewClient(srv.URL, "u", "p", "", srv.Client(), nil)
	if err := client.DeleteShare(context.Background(), "17"); err != nil {
		t.Fatalf("DeleteShare: %v", err)
	}
	if gotPath != "/ocs/v2.php/apps/files_sharing/api/v1/shares/17" {
		t.Fatalf("unexpected path %q", gotPath)
	}

	status = http.StatusNotFound
	if err := client.DeleteShare(context.Background(), "17"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()
	_, err := nextcloud.NewClient(url, "u", "p", "", nil, nil).CreateFolder(context.Background(), "/x")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestProbeRequiresMultiStatus(t *testing.T) {
	status := http.StatusMultiStatus
	var gotDepth, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotDepth = r.Header.Get("Depth")
		w.WriteHeader(status)
	}))
	defer srv.Close()

	client := nextcloud.NewClient(srv.URL, "relay", "pw", "", srv.Client(), nil)
	if err := client.Probe(context.Background(), "/КАТАЛОГ"); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if gotMethod != "PROPFIND" || gotDepth != "0" {
		t.Fatalf("unexpected request %s depth=%q", gotMethod, gotDepth)
	}

	status = http.StatusNotFound
	err := client.Probe(context.Background(), "/missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

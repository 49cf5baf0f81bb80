package blob

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenSelectsDriverFromEnv(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "blobs")
	cases := []struct {
		name   string
		env    map[string]string
		driver Driver
		errSub string
	}{
		{name: "default fs", env: map[string]string{"LINEAGECORE_BLOB_FS_ROOT": root}, driver: DriverFilesystem},
		{name: "memory", env: map[string]string{"LINEAGECORE_BLOB_DRIVER": "memory"}, driver: DriverMemory},
		{name: "s3 needs bucket", env: map[string]string{"LINEAGECORE_BLOB_DRIVER": "s3"}, errSub: "LINEAGECORE_BLOB_S3_BUCKET"},
		{name: "unknown", env: map[string]string{"LINEAGECORE_BLOB_DRIVER": "tape"}, errSub: "unknown blob driver"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("LINEAGECORE_BLOB_DRIVER", "")
			t.Setenv("LINEAGECORE_BLOB_S3_BUCKET", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			store, err := Open(ctx)
			if tc.errSub != "" {
				if err == nil || !strings.Contains(err.Error(), tc.errSub) {
					t.Fatalf("expected error containing %q, got %v", tc.errSub, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if store.Driver() != tc.driver {
				t.Fatalf("expected %s, got %s", tc.driver, store.Driver())
			}
		})
	}
}

func TestBackendsShareCreateOnlySemantics(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	for _, store := range []Store{NewMemory(), fsStore, NewMockS3ForTests()} {
		if _, err := store.Put(ctx, "layouts/x/1.json", strings.NewReader("{}"), PutOptions{ContentType: "application/json"}); err != nil {
			t.Fatalf("%s put: %v", store.Driver(), err)
		}
		if _, err := store.Put(ctx, "layouts/x/1.json", strings.NewReader("{}"), PutOptions{}); err == nil {
			t.Fatalf("%s: expected create-only failure", store.Driver())
		}
		infos, err := store.List(ctx, "layouts/x/")
		if err != nil || len(infos) != 1 {
			t.Fatalf("%s list: %+v %v", store.Driver(), infos, err)
		}
	}
}

package app

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/frudas24/frameit/internal/compositor"
	"github.com/frudas24/frameit/internal/errs"
	"github.com/frudas24/frameit/internal/media"
)

// uploadMemory is how much of a multipart upload is kept in memory before
// spilling to disk.
const uploadMemory = 8 << 20

type uploadResponse struct {
	AssetID string `json:"assetId"`
	Kind    string `json:"kind"`
}

// handleUpload is the input boundary: the upload is sniffed and size checked
// before the session is touched. Decoding continues in the background and
// lands through the control socket.
func (a *App) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.limits.Max()+1<<20)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		a.reject(w, uploadParseErr(err, a.limits.Max()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		a.reject(w, errs.New(errs.CodeInputRejected, "No file was chosen."))
		return
	}
	defer file.Close()

	header := make([]byte, media.SniffLen)
	n, err := io.ReadFull(file, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		a.reject(w, errs.Wrap(errs.CodeInputRejected, err, "We couldn't read that file."))
		return
	}
	kind, mime, err := media.Sniff(header[:n])
	if err != nil {
		a.reject(w, err)
		return
	}
	if err := a.limits.Check(kind, hdr.Size); err != nil {
		a.reject(w, err)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		a.reject(w, errs.Wrap(errs.CodeInputRejected, err, "We couldn't read that file."))
		return
	}

	var load func(ctx context.Context, id string) (media.Asset, error)
	switch kind {
	case media.KindImage:
		data, err := io.ReadAll(file)
		if err != nil {
			a.reject(w, errs.Wrap(errs.CodeInputRejected, err, "We couldn't read that file."))
			return
		}
		load = func(_ context.Context, id string) (media.Asset, error) {
			return a.loader.LoadImage(id, hdr.Filename, data)
		}
	case media.KindVideo:
		path, err := spoolUpload(file)
		if err != nil {
			errs.WriteHTTP(w, errs.Wrap(errs.CodeInternal, err, "Could not store the upload."))
			return
		}
		load = func(ctx context.Context, id string) (media.Asset, error) {
			asset, err := a.loader.LoadVideo(ctx, id, hdr.Filename, path)
			if err != nil {
				_ = os.Remove(path)
				return nil, err
			}
			return asset, nil
		}
	}

	id, err := a.session.BeginLoad()
	if err != nil {
		a.logger.Warn("previous asset release failed", "err", err)
	}
	a.logger.Info("upload accepted", "asset", id, "kind", kind, "mime", mime,
		"size", humanize.IBytes(uint64(hdr.Size)))

	a.loads.Add(1)
	go func() {
		defer a.loads.Done()
		a.finishLoad(id, load)
	}()
	writeJSON(w, http.StatusAccepted, uploadResponse{AssetID: id, Kind: kind.String()})
}

// finishLoad decodes the upload and installs it if it is still current.
func (a *App) finishLoad(id string, load func(ctx context.Context, id string) (media.Asset, error)) {
	start := time.Now()
	asset, err := load(a.loadCtx, id)
	if err != nil {
		if a.session.FailLoad(id, err) {
			a.logger.Warn("asset load failed", "asset", id, "err", err)
		}
		return
	}
	if err := a.session.CompleteLoad(id, asset); err != nil {
		a.logger.Debug("asset discarded", "asset", id, "err", err)
		return
	}
	a.logger.Info("asset ready", "asset", id, "w", asset.NativeWidth(), "h", asset.NativeHeight(),
		"dur", time.Since(start).Round(time.Millisecond))
}

// reject answers an upload the boundary refused and mirrors the message to
// the control socket. The loaded media is left alone.
func (a *App) reject(w http.ResponseWriter, err error) {
	a.logger.Info("upload rejected", "code", errs.GetCode(err), "err", err)
	a.session.SetMessage(errs.UserMessage(err))
	errs.WriteHTTP(w, err)
}

// uploadParseErr classifies a multipart parse failure.
func uploadParseErr(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errs.Wrap(errs.CodeMediaTooLarge, err, "That file is too large. The limit is %s.",
			humanize.IBytes(uint64(limit)))
	}
	return errs.Wrap(errs.CodeInputRejected, err, "No file was chosen.")
}

// spoolUpload copies a video upload to a temp file the asset will own.
func spoolUpload(file multipart.File) (string, error) {
	f, err := os.CreateTemp("", "frameit-upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, file); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// handleClear drops the loaded media.
func (a *App) handleClear(w http.ResponseWriter, _ *http.Request) {
	if err := a.session.Clear(); err != nil {
		a.logger.Warn("clear: release failed", "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportImage composites the current placement at the frame's native
// resolution.
func (a *App) handleExportImage(w http.ResponseWriter, r *http.Request) {
	format, err := compositor.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		errs.WriteHTTP(w, errs.Wrap(errs.CodeInvalidParams, err, "Choose jpeg, png or webp."))
		return
	}
	img, err := a.exporter.Image(format)
	if err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="frameit.`+format.Ext()+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img.Data)
}

// handleExportVideo renders the loaded video, remotely when a render server
// is configured, and streams the mp4 back.
func (a *App) handleExportVideo(w http.ResponseWriter, r *http.Request) {
	path, err := a.exportVideo(r.Context())
	if err != nil {
		a.logger.Warn("video export failed", "code", errs.GetCode(err), "err", err)
		errs.WriteHTTP(w, err)
		return
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		errs.WriteHTTP(w, errs.Wrap(errs.CodeExportFailed, err, "The export was lost."))
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		errs.WriteHTTP(w, errs.Wrap(errs.CodeExportFailed, err, "The export was lost."))
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="frameit.mp4"`)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, "frameit.mp4", st.ModTime(), f)
}

// exportVideo produces the export mp4 and returns its temp path.
func (a *App) exportVideo(ctx context.Context) (string, error) {
	if a.cfg.RemoteExportURL == "" {
		v, err := a.exporter.Video(ctx)
		if err != nil {
			return "", err
		}
		a.logger.Info("video exported", "frames", v.Frames, "w", v.Width, "h", v.Height)
		return v.Path, nil
	}

	f, err := os.CreateTemp("", "frameit-remote-*.mp4")
	if err != nil {
		return "", errs.Wrap(errs.CodeInternal, err, "Could not store the export.")
	}
	if err := a.exporter.Remote(ctx, f); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", errs.Wrap(errs.CodeInternal, err, "Could not store the export.")
	}
	return f.Name(), nil
}

// handleExportParams returns the parameter blob a render server needs.
func (a *App) handleExportParams(w http.ResponseWriter, _ *http.Request) {
	p, err := a.exporter.Params()
	if err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

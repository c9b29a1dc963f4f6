package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp/appinv/internal/application/entities"
	"github.com/erp/appinv/internal/application/listing"
	"github.com/erp/appinv/internal/application/resource"
	"github.com/erp/appinv/internal/domain/identity"
	"github.com/erp/appinv/internal/domain/shared"
	"github.com/erp/appinv/internal/infrastructure/apiclient"
	"github.com/erp/appinv/internal/infrastructure/auth"
)

var (
	errUsage       = errors.New("invalid usage")
	errNotLoggedIn = errors.New("not logged in, run: appinv login -u <user>")
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"login":    cmdLogin,
	"logout":   cmdLogout,
	"whoami":   cmdWhoami,
	"entities": cmdEntities,
	"list":     cmdList,
	"get":      cmdGet,
	"create":   cmdCreate,
	"delete":   cmdDelete,
	"watch":    cmdWatch,
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	return cmd(ctx, a, args[1:])
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// keyValues collects repeated key=value flags
type keyValues map[string]string

func (kv keyValues) String() string {
	parts := make([]string, 0, len(kv))
	for k, v := range kv {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (kv keyValues) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	kv[k] = v
	return nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("login")
	username := fs.String("u", "", "Username")
	password := fs.String("p", "", "Password (default: APPINV_PASSWORD or read from stdin)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *username == "" {
		return fmt.Errorf("%w: -u is required", errUsage)
	}

	pass := *password
	if pass == "" {
		pass = os.Getenv("APPINV_PASSWORD")
	}
	if pass == "" {
		fmt.Fprint(a.out, "Password: ")
		line, err := bufio.NewReader(a.in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		pass = strings.TrimRight(line, "\r\n")
	}

	user, err := a.auth.Login(ctx, identity.Credentials{Username: *username, Password: pass})
	if err != nil {
		return errors.New(apiclient.Message(err, "Login failed"))
	}
	fmt.Fprintf(a.out, "Logged in as %s (%s)\n", user.Username, user.Rol)
	return nil
}

func cmdLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func cmdWhoami(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("whoami")
	remote := fs.Bool("remote", false, "Ask the API instead of the stored session")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if !a.session.IsAuthenticated() {
		return errNotLoggedIn
	}

	user := a.session.User()
	if *remote {
		var err error
		if user, err = a.auth.Me(ctx); err != nil {
			return errors.New(apiclient.Message(err, "Could not load the user"))
		}
	}

	rows := [][2]string{}
	if user != nil {
		rows = append(rows, [2]string{"Usuario", user.Username}, [2]string{"Rol", user.Rol})
		if user.Almacen != nil {
			rows = append(rows, [2]string{"Almacén", user.Almacen.Nombre})
		}
	}
	if info, err := auth.InspectToken(a.session.Token()); err == nil && info.ExpiresAt != nil {
		status := info.ExpiresAt.Local().Format(time.DateTime)
		if info.Expired(time.Now()) {
			status += " (expired)"
		}
		rows = append(rows, [2]string{"Token expira", status})
	}
	return writePairs(a.out, rows)
}

func cmdEntities(_ context.Context, a *app, _ []string) error {
	return writeEntities(a.out, a.registry)
}

// listFlags are shared by list and watch
type listFlags struct {
	page    int
	perPage int
	sort    string
	desc    bool
	filters keyValues
}

func (l *listFlags) register(fs *flag.FlagSet) {
	l.filters = keyValues{}
	fs.IntVar(&l.page, "page", 1, "Page number")
	fs.IntVar(&l.perPage, "per-page", 0, "Items per page (default: entity or configuration)")
	fs.StringVar(&l.sort, "sort", "", "Sort column")
	fs.BoolVar(&l.desc, "desc", false, "Sort descending")
	fs.Var(l.filters, "filter", "Filter as key=value (repeatable)")
}

// controller builds a list controller for e with the flags applied as its defaults
func (l *listFlags) controller(a *app, e resource.Entity) (*listing.Controller[entities.Record], error) {
	if l.sort != "" && !e.Sortable(l.sort) {
		return nil, fmt.Errorf("%w: %s cannot be sorted by %q", errUsage, e.Name, l.sort)
	}
	if l.page < 1 || l.perPage < 0 {
		return nil, fmt.Errorf("%w: page and per-page must be positive", errUsage)
	}
	return entities.NewListWith[entities.Record](a.services, e.Name, func(o *listing.Options) {
		o.InitialPage = l.page
		if l.perPage > 0 {
			o.PerPage = l.perPage
		}
		if l.sort != "" {
			dir := shared.SortAsc
			if l.desc {
				dir = shared.SortDesc
			}
			o.DefaultSort = &shared.Sort{Column: l.sort, Direction: dir}
		} else if l.desc && o.DefaultSort != nil {
			o.DefaultSort = &shared.Sort{Column: o.DefaultSort.Column, Direction: shared.SortDesc}
		}
		filters := o.DefaultFilters.Clone()
		for k, v := range l.filters {
			filters[k] = v
		}
		o.DefaultFilters = filters
	})
}

func (a *app) entity(args []string, want int, usage string) (resource.Entity, []string, error) {
	if len(args) < want {
		return resource.Entity{}, nil, fmt.Errorf("%w: %s", errUsage, usage)
	}
	e, ok := a.registry.Lookup(args[0])
	if !ok {
		return resource.Entity{}, nil, fmt.Errorf("unknown entity %q, run: appinv entities", args[0])
	}
	return e, args[1:], nil
}

func cmdList(ctx context.Context, a *app, args []string) error {
	e, rest, err := a.entity(args, 1, "list <entity> [options]")
	if err != nil {
		return err
	}
	var lf listFlags
	fs := newFlagSet("list")
	lf.register(fs)
	if err := fs.Parse(rest); err != nil {
		return errUsage
	}

	list, err := lf.controller(a, e)
	if err != nil {
		return err
	}
	list.Load(ctx)
	st := list.State()
	if st.Error != "" {
		return errors.New(st.Error)
	}
	return writeList(a.out, e, st)
}

func parseID(s string) (shared.ID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid id %q", errUsage, s)
	}
	return id, nil
}

func cmdGet(ctx context.Context, a *app, args []string) error {
	e, rest, err := a.entity(args, 2, "get <entity> <id>")
	if err != nil {
		return err
	}
	id, err := parseID(rest[0])
	if err != nil {
		return err
	}

	item, err := a.services.NewRecordItem(e.Name)
	if err != nil {
		return err
	}
	if !item.LoadItem(ctx, id) {
		return errors.New(item.State().Error)
	}
	return writeRecord(a.out, e, *item.State().Item)
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	e, rest, err := a.entity(args, 2, "delete <entity> <id>")
	if err != nil {
		return err
	}
	id, err := parseID(rest[0])
	if err != nil {
		return err
	}

	item, err := a.services.NewRecordItem(e.Name)
	if err != nil {
		return err
	}
	if !item.DeleteItem(ctx, id) {
		return errors.New(item.State().Error)
	}
	fmt.Fprintf(a.out, "Deleted %s #%d\n", e.Name, id)
	return nil
}

func cmdCreate(ctx context.Context, a *app, args []string) error {
	e, rest, err := a.entity(args, 1, "create <entity> -set key=value ... [-file path]")
	if err != nil {
		return err
	}
	set := keyValues{}
	fs := newFlagSet("create")
	fs.Var(set, "set", "Field as key=value (repeatable)")
	filePath := fs.String("file", "", "Receipt to attach (entities with uploads only)")
	if err := fs.Parse(rest); err != nil {
		return errUsage
	}
	if len(set) == 0 {
		return fmt.Errorf("%w: at least one -set is required", errUsage)
	}
	rec := typedRecord(set)

	var created *entities.Record
	if *filePath != "" {
		if e.Upload == nil {
			return fmt.Errorf("%s does not accept files", e.Name)
		}
		created, err = a.upload(ctx, e, rec, *filePath)
		if err != nil {
			return errors.New(apiclient.Message(err, "Upload failed"))
		}
	} else {
		item, err := a.services.NewRecordItem(e.Name)
		if err != nil {
			return err
		}
		if created = item.CreateItem(ctx, &rec); created == nil {
			return fieldError(item.State().Error, item.State().FieldErrors)
		}
	}
	return writeRecord(a.out, e, *created)
}

func (a *app) upload(ctx context.Context, e resource.Entity, rec entities.Record, path string) (*entities.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(head[:n])
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	res, err := entities.ResourceFor[entities.Record](a.services, e.Name)
	if err != nil {
		return nil, err
	}
	a.log.Debug("uploading receipt", zap.String("entity", e.Name), zap.String("content_type", contentType))
	return res.Upload(ctx, &rec, &apiclient.File{
		FileName:    filepath.Base(path),
		ContentType: contentType,
		Content:     f,
	})
}

// typedRecord converts -set values: integers and booleans are sent as JSON numbers and booleans
func typedRecord(set keyValues) entities.Record {
	rec := entities.Record{}
	for k, v := range set {
		switch {
		case v == "true" || v == "false":
			rec[k] = v == "true"
		case isInt(v):
			n, _ := strconv.ParseInt(v, 10, 64)
			rec[k] = n
		default:
			rec[k] = v
		}
	}
	return rec
}

func isInt(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func fieldError(message string, fields map[string]string) error {
	if len(fields) == 0 {
		return errors.New(message)
	}
	var b strings.Builder
	b.WriteString(message)
	for _, k := range sortedKeys(fields) {
		fmt.Fprintf(&b, "\n  %s: %s", k, fields[k])
	}
	return errors.New(b.String())
}

func cmdWatch(ctx context.Context, a *app, args []string) error {
	e, rest, err := a.entity(args, 1, "watch <entity> [options]")
	if err != nil {
		return err
	}
	var lf listFlags
	fs := newFlagSet("watch")
	lf.register(fs)
	every := fs.Duration("every", 30*time.Second, "Refresh interval")
	metricsAddr := fs.String("metrics-addr", a.cfg.Telemetry.MetricsAddr, "Serve Prometheus metrics on this address")
	if err := fs.Parse(rest); err != nil {
		return errUsage
	}
	if *every <= 0 {
		return fmt.Errorf("%w: -every must be positive", errUsage)
	}

	list, err := lf.controller(a, e)
	if err != nil {
		return err
	}
	if *metricsAddr != "" {
		stop := a.serveMetrics(*metricsAddr)
		defer stop()
	}

	unsubscribe := list.Subscribe(func(st listing.State[entities.Record]) {
		if st.IsLoading {
			return
		}
		fmt.Fprintf(a.out, "\n%s  %s\n", time.Now().Format(time.TimeOnly), e.Label)
		if st.Error != "" {
			fmt.Fprintln(a.out, "Error:", st.Error)
			return
		}
		if err := writeList(a.out, e, st); err != nil {
			a.log.Warn("Failed to render list", zap.Error(err))
		}
	})
	defer unsubscribe()

	list.Load(ctx)

	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			list.Refresh(ctx)
		}
	}
}

// serveMetrics exposes the client metrics until the returned func is called
func (a *app) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.log.Info("Metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

package mockapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/erp/appinv/internal/application/entities"
	appidentity "github.com/erp/appinv/internal/application/identity"
	"github.com/erp/appinv/internal/application/resource"
	"github.com/erp/appinv/internal/domain/finance"
	"github.com/erp/appinv/internal/domain/identity"
	"github.com/erp/appinv/internal/domain/partner"
	"github.com/erp/appinv/internal/infrastructure/apiclient"
	"github.com/erp/appinv/internal/infrastructure/auth"
	"github.com/erp/appinv/internal/infrastructure/telemetry"
	"github.com/erp/appinv/internal/interfaces/http/mockapi"
)

type sandbox struct {
	server   *mockapi.Server
	session  *auth.Session
	auth     *appidentity.AuthService
	services *entities.Services
	metrics  *telemetry.ClientMetrics
}

func startSandbox(t *testing.T, seed int) *sandbox {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	srv, err := mockapi.New(mockapi.Options{JWTSecret: "e2e", BcryptCost: bcrypt.MinCost, FakerSeed: 42, Logger: log})
	require.NoError(t, err)
	_, err = srv.AddUser("admin", "admin123", identity.RolAdmin)
	require.NoError(t, err)
	require.NoError(t, srv.Seed(seed))

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	session := auth.NewSession(auth.NewMemoryStore(), log)
	metrics := telemetry.NewClientMetrics("")
	client, err := apiclient.New(apiclient.Options{
		BaseURL: hs.URL + srv.BasePath(),
		Tokens:  session,
		Logger:  log,
		Metrics: metrics,
	})
	require.NoError(t, err)

	reg, err := resource.DefaultRegistry()
	require.NoError(t, err)
	return &sandbox{
		server:   srv,
		session:  session,
		auth:     appidentity.NewAuthService(client, session, log),
		services: entities.NewServices(client, reg, entities.Options{PerPage: 10, Logger: log, Metrics: metrics}),
		metrics:  metrics,
	}
}

func (s *sandbox) login(t *testing.T) {
	t.Helper()
	_, err := s.auth.Login(context.Background(), identity.Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
}

func TestEndToEnd_ListController(t *testing.T) {
	sb := startSandbox(t, 30)
	ctx := context.Background()

	clientes, err := entities.NewList[partner.Cliente](sb.services, "clientes")
	require.NoError(t, err)

	clientes.Load(ctx)
	assert.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(clientes.Err()))
	assert.Equal(t, "Authentication required", clientes.State().Error)
	assert.Empty(t, clientes.State().Data)

	sb.login(t)
	clientes.Refresh(ctx)
	st := clientes.State()
	require.Empty(t, st.Error)
	assert.Len(t, st.Data, 10)
	assert.Equal(t, 1, st.CurrentPage)
	assert.Equal(t, 3, st.TotalPages)
	assert.Equal(t, 30, st.TotalItems)
	assert.True(t, sortedBy(st.Data, false), "registry default sort is nombre asc")

	clientes.OnPageChange(ctx, 3)
	assert.Equal(t, 3, clientes.State().CurrentPage)
	assert.Len(t, clientes.State().Data, 10)

	clientes.OnItemsPerPageChange(ctx, 25)
	st = clientes.State()
	assert.Equal(t, 1, st.CurrentPage)
	assert.Equal(t, 2, st.TotalPages)
	assert.Len(t, st.Data, 25)

	clientes.OnSort(ctx, "nombre")
	assert.True(t, sortedBy(clientes.State().Data, true), "same column toggles to desc")

	clientes.OnPageChange(ctx, 0)
	assert.Equal(t, 1, clientes.State().CurrentPage, "invalid page is ignored")
}

func TestEndToEnd_FiltersAndItemController(t *testing.T) {
	sb := startSandbox(t, 12)
	sb.login(t)
	ctx := context.Background()

	item, err := entities.NewItem[partner.Cliente](sb.services, "clientes")
	require.NoError(t, err)
	created := item.CreateItem(ctx, &partner.Cliente{Nombre: "Zoë Ñáñez", Ciudad: "Arequipa"})
	require.NotNil(t, created, item.State().Error)
	require.NotZero(t, created.ID)

	clientes, err := entities.NewList[partner.Cliente](sb.services, "clientes")
	require.NoError(t, err)
	clientes.Load(ctx)
	assert.Equal(t, 13, clientes.State().TotalItems)

	clientes.HandleFilterChange("nombre", "zoe nanez")
	assert.Equal(t, 13, clientes.State().TotalItems, "pending filters do not fetch")
	clientes.ApplyFilters(ctx)
	st := clientes.State()
	require.Len(t, st.Data, 1)
	assert.Equal(t, created.ID, st.Data[0].ID)

	clientes.ClearFilters(ctx)
	assert.Equal(t, 13, clientes.State().TotalItems)

	updated := item.UpdateItem(ctx, created.ID, &partner.Cliente{Nombre: "Zoë Ñáñez", Ciudad: "Tacna"})
	require.NotNil(t, updated, item.State().Error)
	assert.Equal(t, "Tacna", updated.Ciudad)

	require.True(t, item.LoadItem(ctx, created.ID))
	assert.Equal(t, "Tacna", item.State().Item.Ciudad)

	require.True(t, item.DeleteItem(ctx, created.ID))
	assert.False(t, item.LoadItem(ctx, created.ID))
	assert.Equal(t, http.StatusNotFound, apiclient.StatusCode(item.Err()))
	assert.Equal(t, "Clientes not found", item.State().Error)
	assert.Nil(t, item.State().Item)
}

func TestEndToEnd_ServerFieldErrors(t *testing.T) {
	sb := startSandbox(t, 1)
	sb.login(t)

	usuarios, err := entities.NewItem[identity.Usuario](sb.services, "usuarios")
	require.NoError(t, err)

	assert.Nil(t, usuarios.CreateItem(context.Background(), &identity.Usuario{Username: "pedro", Rol: identity.RolUsuario}))
	assert.Equal(t, http.StatusBadRequest, apiclient.StatusCode(usuarios.Err()))
	assert.Equal(t, "This field is required", usuarios.State().FieldErrors["password"])
}

func TestEndToEnd_UploadAndSession(t *testing.T) {
	sb := startSandbox(t, 3)
	sb.login(t)
	ctx := context.Background()

	pago, err := sb.services.Pagos().Upload(ctx, &finance.Pago{
		VentaID:    1,
		Monto:      decimal.NewFromInt(50),
		FechaPago:  "2026-05-01",
		MetodoPago: "deposito",
	}, &apiclient.File{FileName: "voucher.png", ContentType: "image/png", Content: strings.NewReader("png")})
	require.NoError(t, err)
	assert.NotZero(t, pago.ID)
	assert.True(t, pago.Monto.Equal(decimal.NewFromInt(50)))
	assert.Contains(t, pago.ComprobanteURL, "/voucher.png")

	me, err := sb.auth.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", me.Username)

	count, err := testutil.GatherAndCount(sb.metrics.Registry(), "appinv_client_requests_total")
	require.NoError(t, err)
	assert.Positive(t, count)

	require.NoError(t, sb.auth.Logout(ctx))
	assert.False(t, sb.session.IsAuthenticated())

	_, err = sb.services.Clientes().Get(ctx, 1)
	assert.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))
}

func sortedBy(data []partner.Cliente, desc bool) bool {
	for i := 1; i < len(data); i++ {
		a, b := strings.ToLower(data[i-1].Nombre), strings.ToLower(data[i].Nombre)
		if desc && a < b || !desc && a > b {
			return false
		}
	}
	return true
}

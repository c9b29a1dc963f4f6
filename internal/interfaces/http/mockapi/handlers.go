package mockapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/appinv/internal/domain/identity"
	"github.com/erp/appinv/internal/domain/shared"
	"github.com/erp/appinv/internal/infrastructure/logger"
)

const usuariosEntity = "usuarios"

// login checks credentials and returns {access_token, user}
func (s *Server) login(c *gin.Context) {
	var creds identity.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		abortError(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	fields := map[string]string{}
	if strings.TrimSpace(creds.Username) == "" {
		fields["username"] = "This field is required"
	}
	if creds.Password == "" {
		fields["password"] = "This field is required"
	}
	if len(fields) > 0 {
		abortValidation(c, fields)
		return
	}

	acc, err := s.accounts.authenticate(creds.Username, creds.Password)
	if err != nil {
		logger.GetGinLogger(c).Info("login rejected", zap.String("username", creds.Username))
		abortError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid username or password")
		return
	}
	user, ok := s.usuario(acc.id)
	if !ok {
		abortError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid username or password")
		return
	}

	token, err := s.tokens.issue(acc)
	if err != nil {
		c.Error(err)
		abortError(c, http.StatusInternalServerError, ErrCodeInternal, "Could not issue token")
		return
	}
	c.JSON(http.StatusOK, identity.LoginResult{Token: token, User: *user})
}

// me returns the user of the bearer token
func (s *Server) me(c *gin.Context) {
	claims := claimsFrom(c)
	if claims == nil {
		abortError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required")
		return
	}
	id, err := claims.UserID()
	if err != nil {
		abortError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid token")
		return
	}
	user, ok := s.usuario(id)
	if !ok {
		abortError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "User no longer exists")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) usuario(id int64) (*identity.Usuario, bool) {
	coll, ok := s.store.collection(usuariosEntity)
	if !ok {
		return nil, false
	}
	rec, ok := coll.get(id)
	if !ok {
		return nil, false
	}
	var u identity.Usuario
	if err := decodeRecord(rec, &u); err != nil {
		return nil, false
	}
	return &u, true
}

// entityHandler serves the list convention and item CRUD of one collection
type entityHandler struct {
	server *Server
	coll   *collection
}

func (h *entityHandler) register(rg *gin.RouterGroup) {
	e := h.coll.entity
	rg.GET(e.Endpoint, h.list)
	rg.POST(e.Endpoint, h.create)
	rg.GET(e.Endpoint+"/:id", h.get)
	rg.PUT(e.Endpoint+"/:id", h.update)
	rg.DELETE(e.Endpoint+"/:id", h.delete)
}

func (h *entityHandler) list(c *gin.Context) {
	e := h.coll.entity
	perPage := e.PerPage
	if perPage == 0 {
		perPage = h.server.opts.PerPage
	}
	q, fields := parseListQuery(e, c.Request.URL.Query(), perPage)
	if fields != nil {
		abortValidation(c, fields)
		return
	}

	items, total := q.apply(e, h.coll.all())
	c.JSON(http.StatusOK, shared.NewPage(items, total, q.page, q.perPage))
}

func (h *entityHandler) get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, found := h.coll.get(id)
	if !found {
		notFound(c, h.coll.entity.Label)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *entityHandler) create(c *gin.Context) {
	rec, ok := h.readBody(c)
	if !ok {
		return
	}
	if fields := h.requiredFields(rec, true); len(fields) > 0 {
		abortValidation(c, fields)
		return
	}

	password, isUser := h.takePassword(rec)
	if isUser {
		username := scalar(rec["username"])
		if h.server.accounts.taken(username, 0) {
			abortError(c, http.StatusConflict, ErrCodeConflict, ErrUsernameTaken.Error())
			return
		}
	}

	h.server.store.resolveRefs(rec)
	created := h.coll.insert(rec)
	id, _ := toID(created["id"])

	if isUser {
		if err := h.server.accounts.set(id, scalar(created["username"]), scalar(created["rol"]), password); err != nil {
			h.coll.remove(id)
			h.accountError(c, err)
			return
		}
	}
	logger.GetGinLogger(c).Debug("record created", zap.String("entity", h.coll.entity.Name), zap.Int64("id", id))
	c.JSON(http.StatusCreated, created)
}

func (h *entityHandler) update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if _, found := h.coll.get(id); !found {
		notFound(c, h.coll.entity.Label)
		return
	}
	rec, ok := h.readBody(c)
	if !ok {
		return
	}
	if fields := h.requiredFields(rec, false); len(fields) > 0 {
		abortValidation(c, fields)
		return
	}

	password, isUser := h.takePassword(rec)
	h.server.store.resolveRefs(rec)
	if isUser {
		current, _ := h.coll.get(id)
		username, rol := scalar(current["username"]), scalar(current["rol"])
		if v, ok := rec["username"]; ok {
			username = scalar(v)
		}
		if v, ok := rec["rol"]; ok {
			rol = scalar(v)
		}
		var err error
		if password != "" {
			err = h.server.accounts.set(id, username, rol, password)
		} else {
			err = h.server.accounts.rename(id, username, rol)
		}
		if err != nil {
			h.accountError(c, err)
			return
		}
	}

	updated, found := h.coll.update(id, rec)
	if !found {
		notFound(c, h.coll.entity.Label)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *entityHandler) delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if !h.coll.remove(id) {
		notFound(c, h.coll.entity.Label)
		return
	}
	if h.coll.entity.Name == usuariosEntity {
		h.server.accounts.remove(id)
	}
	c.Status(http.StatusNoContent)
}

// readBody decodes a JSON body, or a multipart form for entities that take a receipt
func (h *entityHandler) readBody(c *gin.Context) (Record, bool) {
	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.readMultipart(c)
	}

	rec := Record{}
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		abortError(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return nil, false
	}
	delete(rec, "id")
	return rec, true
}

func (h *entityHandler) readMultipart(c *gin.Context) (Record, bool) {
	upload := h.coll.entity.Upload
	if upload == nil {
		abortError(c, http.StatusUnsupportedMediaType, ErrCodeUnsupported, h.coll.entity.Label+" does not accept files")
		return nil, false
	}
	form, err := c.MultipartForm()
	if err != nil {
		abortError(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid multipart body")
		return nil, false
	}

	rec := Record{}
	for key, vals := range form.Value {
		if len(vals) > 0 && key != "id" {
			rec[key] = formValue(key, vals[0])
		}
	}

	files := form.File[upload.Field]
	if len(files) == 0 {
		return rec, true
	}
	file := files[0]
	if ct := file.Header.Get("Content-Type"); len(upload.Types) > 0 && !slices.Contains(upload.Types, ct) {
		abortValidation(c, map[string]string{upload.Field: "Unsupported file type " + ct})
		return nil, false
	}
	rec[upload.URLField] = path.Join("/uploads", h.coll.entity.Name, uuid.NewString(), path.Base(file.Filename))
	return rec, true
}

// formValue types multipart values the way a JSON body would carry them
func formValue(key, v string) any {
	if key == "id" || strings.HasSuffix(key, "_id") {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	return v
}

// requiredFields reports missing names and user credentials
func (h *entityHandler) requiredFields(rec Record, creating bool) map[string]string {
	fields := map[string]string{}
	check := func(key string) {
		v, present := rec[key]
		if (creating || present) && strings.TrimSpace(scalar(v)) == "" {
			fields[key] = "This field is required"
		}
	}
	if _, ok := h.coll.entity.Column("nombre"); ok {
		check("nombre")
	}
	if h.coll.entity.Name == usuariosEntity {
		check("username")
		check("rol")
		if creating {
			check("password")
		}
		if rol, ok := rec["rol"]; ok && fields["rol"] == "" {
			switch scalar(rol) {
			case identity.RolAdmin, identity.RolGerente, identity.RolUsuario:
			default:
				fields["rol"] = "Must be one of: admin gerente usuario"
			}
		}
	}
	return fields
}

// takePassword removes the password from a usuarios record; it is never stored in the collection
func (h *entityHandler) takePassword(rec Record) (string, bool) {
	if h.coll.entity.Name != usuariosEntity {
		return "", false
	}
	password := scalar(rec["password"])
	delete(rec, "password")
	return password, true
}

func (h *entityHandler) accountError(c *gin.Context, err error) {
	if errors.Is(err, ErrUsernameTaken) {
		abortError(c, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	}
	c.Error(err)
	abortError(c, http.StatusInternalServerError, ErrCodeInternal, "Could not store credentials")
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		abortError(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

// decodeRecord converts a stored record into a typed entity
func decodeRecord(rec Record, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(rec); err != nil {
		return err
	}
	return json.NewDecoder(&buf).Decode(out)
}

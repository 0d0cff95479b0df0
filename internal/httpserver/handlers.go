package httpserver

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/identity"
	"storefront/internal/session"

	"github.com/gin-gonic/gin"
)

const sessionCtxKey = "storefront.session"

type handlers struct {
	sessions *session.Registry
	logger   *log.Logger
}

func sessionMiddleware(reg *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(SessionHeader))
		if token == "" {
			writeError(c, session.ErrInvalidToken)
			return
		}
		sess, err := reg.Lookup(token)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Set(sessionCtxKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	v, _ := c.Get(sessionCtxKey)
	sess, _ := v.(*session.Session)
	return sess
}

// identityContext forwards the caller's bearer token to the identity provider.
func identityContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if tok := identity.BearerToken(c.GetHeader("Authorization")); tok != "" {
		ctx = identity.WithToken(ctx, tok)
	}
	return ctx
}

type sessionResponse struct {
	SessionID string    `json:"sessionId"`
	Token     string    `json:"token"`
	ExpiresIn int       `json:"expiresIn"`
	State     stateView `json:"state"`
}

// createSession issues a session and performs the initial catalog and user
// loads. Load failures do not fail the request; they show up as stale status.
func (h *handlers) createSession(c *gin.Context) {
	sess, err := h.sessions.Issue(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ctx := identityContext(c)
	if err := sess.Store.LoadCatalog(ctx); err != nil {
		h.logger.Printf("http: session=%s initial catalog load: %v", sess.ID, err)
	}
	if err := sess.Store.LoadUser(ctx); err != nil {
		h.logger.Printf("http: session=%s initial user load: %v", sess.ID, err)
	}
	c.JSON(http.StatusCreated, sessionResponse{
		SessionID: sess.ID,
		Token:     sess.Token,
		ExpiresIn: h.sessions.TTLSeconds(),
		State:     toStateView(sess.Store.Snapshot()),
	})
}

func (h *handlers) deleteSession(c *gin.Context) {
	h.sessions.Revoke(currentSession(c).Token)
	c.Status(http.StatusNoContent)
}

func (h *handlers) getState(c *gin.Context) {
	sess := currentSession(c)
	snap := sess.Store.Snapshot()
	if _, missing := snap.CartAmount(); len(missing) > 0 {
		h.logger.Printf("http: session=%s cart references unknown products ids=%s", sess.ID, strings.Join(missing, ","))
	}
	c.JSON(http.StatusOK, toStateView(snap))
}

func (h *handlers) listProducts(c *gin.Context) {
	snap := currentSession(c).Store.Snapshot()
	products := snap.Products
	if products == nil {
		products = []domain.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "status": toStatusView(snap.CatalogStatus)})
}

func (h *handlers) getProduct(c *gin.Context) {
	p, ok := currentSession(c).Store.Snapshot().Product(c.Param("productId"))
	if !ok {
		writeError(c, domain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) reloadCatalog(c *gin.Context) {
	st := currentSession(c).Store
	if err := st.LoadCatalog(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStateView(st.Snapshot()))
}

func (h *handlers) reloadUser(c *gin.Context) {
	st := currentSession(c).Store
	if err := st.LoadUser(identityContext(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStateView(st.Snapshot()))
}

type sellerRequest struct {
	IsSeller *bool `json:"isSeller"`
}

func (h *handlers) setSeller(c *gin.Context) {
	var req sellerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsSeller == nil {
		writeError(c, domain.InvalidArgument("isSeller required"))
		return
	}
	st := currentSession(c).Store
	st.SetSeller(*req.IsSeller)
	c.JSON(http.StatusOK, toStateView(st.Snapshot()))
}

func (h *handlers) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, toCartView(currentSession(c).Store.Snapshot()))
}

type addItemRequest struct {
	ProductID string `json:"productId"`
}

func (h *handlers) addToCart(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.InvalidArgument("malformed body: %v", err))
		return
	}
	st := currentSession(c).Store
	if err := st.AddToCart(req.ProductID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartView(st.Snapshot()))
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *handlers) updateCartQuantity(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity == nil {
		writeError(c, domain.InvalidArgument("quantity required"))
		return
	}
	st := currentSession(c).Store
	if err := st.UpdateCartQuantity(c.Param("productId"), *req.Quantity); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartView(st.Snapshot()))
}

type replaceCartRequest struct {
	Items map[string]int `json:"items"`
}

func (h *handlers) replaceCart(c *gin.Context) {
	var req replaceCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.InvalidArgument("malformed body: %v", err))
		return
	}
	st := currentSession(c).Store
	if err := st.ReplaceCart(req.Items); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartView(st.Snapshot()))
}

// events streams a snapshot to the client after every store change.
func (h *handlers) events(c *gin.Context) {
	sess := currentSession(c)
	updates, cancel := sess.Store.Subscribe()
	defer cancel()

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-done:
			return false
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("state", toStateView(snap))
			return true
		}
	})
	h.logger.Printf("http: session=%s event stream closed", sess.ID)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/edustack/institute-api/internal/models"
)

func rbacContext(t *testing.T, claims *models.JWTClaims, paramKey, paramValue string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if claims != nil {
		c.Set(ContextUserKey, claims)
	}
	if paramKey != "" {
		c.Params = gin.Params{{Key: paramKey, Value: paramValue}}
	}
	return c, rec
}

func TestRBACAllowsRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleStaff}
	c, _ := rbacContext(t, claims, "userId", "user-2")

	RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), string(models.RoleStaff), "SELF")(c)

	assert.False(t, c.IsAborted())
}

func TestRBACAllowsSelfOnUserIDParam(t *testing.T) {
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}
	c, _ := rbacContext(t, claims, "userId", "user-1")

	RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), string(models.RoleStaff), "SELF")(c)

	assert.False(t, c.IsAborted())
}

func TestRBACForbidsOtherStudent(t *testing.T) {
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}
	c, rec := rbacContext(t, claims, "userId", "user-2")

	RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), string(models.RoleStaff), "SELF")(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRBACForbidsSelfWhenNotAllowed(t *testing.T) {
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}
	c, rec := rbacContext(t, claims, "id", "user-1")

	RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin))(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRBACRequiresAuthentication(t *testing.T) {
	c, rec := rbacContext(t, nil, "", "")

	RBAC(string(models.RoleAdmin))(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

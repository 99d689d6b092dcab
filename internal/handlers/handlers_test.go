package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/unipool/unipool-backend/internal/database"
	"github.com/unipool/unipool-backend/internal/engine"
	"github.com/unipool/unipool-backend/internal/middleware"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:test-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(sqlite.Open(dsn))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	eng := engine.New(db, nil)

	r := gin.New()
	api := r.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", Register(db))
	auth.POST("/login", Login(db))

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware())
	protected.GET("/carpools", ListCarpools(eng))
	protected.POST("/carpools", CreateCarpool(db, eng))
	protected.GET("/carpools/mine", GetMyCarpool(eng))
	protected.PUT("/carpools/:id", UpdateCarpool(eng))
	protected.DELETE("/carpools/:id", DeleteCarpool(eng))
	protected.POST("/bookings", CreateBooking(db, eng))
	protected.GET("/bookings/rider", GetRiderBookings(eng))
	protected.GET("/bookings/driver", GetDriverBookings(eng))
	protected.PATCH("/bookings/:id/status", UpdateBookingStatus(db, eng))
	protected.DELETE("/bookings/:id", CancelBooking(eng))
	protected.POST("/messages", PostMessage(eng))
	protected.GET("/messages", ListMessages(eng))

	return r, db
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

// registerUser creates an account through the API and returns its token.
func registerUser(t *testing.T, r *gin.Engine, username string) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	return decode(t, w)["token"].(string)
}

func carpoolBody() gin.H {
	return gin.H{
		"carModel":          "Toyota Corolla",
		"departureLocation": "University Main Gate",
		"schedule": []gin.H{
			{"day": "Monday", "departureTime": "08:00", "returnTime": "17:30", "availableSeats": 2},
		},
	}
}

func TestAuthFlow(t *testing.T) {
	r, _ := newTestRouter(t)

	token := registerUser(t, r, "ama")
	require.NotEmpty(t, token)

	// Duplicate registration is rejected.
	w := doJSON(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "ama",
		"email":    "ama@example.com",
		"password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "ama@example.com",
		"password": "secret123",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "ama@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Protected routes require a token.
	w = doJSON(t, r, http.MethodGet, "/api/carpools", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = doJSON(t, r, http.MethodGet, "/api/carpools", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	r, _ := newTestRouter(t)

	driver := registerUser(t, r, "ama")
	rider := registerUser(t, r, "kofi")

	// Driver publishes a carpool.
	w := doJSON(t, r, http.MethodPost, "/api/carpools", driver, carpoolBody())
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	carpool := decode(t, w)
	carpoolID := uint(carpool["ID"].(float64))

	// A second one is rejected.
	w = doJSON(t, r, http.MethodPost, "/api/carpools", driver, carpoolBody())
	assert.Equal(t, http.StatusConflict, w.Code)

	// Rider finds it and requests Monday.
	w = doJSON(t, r, http.MethodGet, "/api/carpools?departureLocation=main+gate", rider, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/bookings", rider, gin.H{
		"carpoolId": carpoolID,
		"day":       "Monday",
	})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	booking := decode(t, w)
	bookingID := uint(booking["ID"].(float64))
	assert.Equal(t, "pending", booking["status"])

	// Duplicate request for the same day conflicts.
	w = doJSON(t, r, http.MethodPost, "/api/bookings", rider, gin.H{
		"carpoolId": carpoolID,
		"day":       "Monday",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Booking a day outside the schedule is a 404.
	w = doJSON(t, r, http.MethodPost, "/api/bookings", rider, gin.H{
		"carpoolId": carpoolID,
		"day":       "Friday",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The driver sees the request; the rider cannot use the driver view.
	w = doJSON(t, r, http.MethodGet, "/api/bookings/driver", driver, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, http.MethodGet, "/api/bookings/driver", rider, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Only the driver can decide, and only to approved/declined.
	w = doJSON(t, r, http.MethodPatch, fmt.Sprintf("/api/bookings/%d/status", bookingID), rider, gin.H{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = doJSON(t, r, http.MethodPatch, fmt.Sprintf("/api/bookings/%d/status", bookingID), driver, gin.H{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPatch, fmt.Sprintf("/api/bookings/%d/status", bookingID), driver, gin.H{"status": "approved"})
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	assert.Equal(t, "approved", decode(t, w)["status"])

	// The seat is consumed.
	w = doJSON(t, r, http.MethodGet, "/api/carpools", rider, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var carpools []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &carpools))
	require.Len(t, carpools, 1)
	schedule := carpools[0]["schedule"].([]interface{})
	require.Len(t, schedule, 1)
	assert.Equal(t, float64(1), schedule[0].(map[string]interface{})["availableSeats"])

	// Approved rider and driver can chat.
	driverID := uint(carpool["driverId"].(float64))
	w = doJSON(t, r, http.MethodPost, "/api/messages", rider, gin.H{
		"carpoolId":  carpoolID,
		"receiverId": driverID,
		"text":       "See you Monday!",
	})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/messages?carpoolId=%d&peerId=%d", carpoolID, driverID), rider, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var messages []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "See you Monday!", messages[0]["text"])

	// Rider cancels; the seat comes back.
	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/bookings/%d", bookingID), rider, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, http.MethodGet, "/api/bookings/rider", rider, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var remaining []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &remaining))
	assert.Empty(t, remaining)
}

func TestCarpoolDeletionOverHTTP(t *testing.T) {
	r, _ := newTestRouter(t)

	driver := registerUser(t, r, "ama")
	stranger := registerUser(t, r, "yaw")

	w := doJSON(t, r, http.MethodPost, "/api/carpools", driver, carpoolBody())
	require.Equal(t, http.StatusCreated, w.Code)
	carpoolID := uint(decode(t, w)["ID"].(float64))

	// Only the owner may delete.
	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/carpools/%d", carpoolID), stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/carpools/%d", carpoolID), driver, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// A deleted carpool answers 410, not 404.
	w = doJSON(t, r, http.MethodPost, "/api/bookings", stranger, gin.H{
		"carpoolId": carpoolID,
		"day":       "Monday",
	})
	assert.Equal(t, http.StatusGone, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/carpools/mine", driver, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateCarpoolOverHTTP(t *testing.T) {
	r, _ := newTestRouter(t)

	driver := registerUser(t, r, "ama")

	w := doJSON(t, r, http.MethodPost, "/api/carpools", driver, carpoolBody())
	require.Equal(t, http.StatusCreated, w.Code)
	carpoolID := uint(decode(t, w)["ID"].(float64))

	body := carpoolBody()
	body["carModel"] = "Honda Civic"
	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/carpools/%d", carpoolID), driver, body)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	assert.Equal(t, "Honda Civic", decode(t, w)["carModel"])

	w = doJSON(t, r, http.MethodPut, "/api/carpools/not-a-number", driver, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

package verify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/campus"
	"campusattend/internal/session"
)

func floatPtr(f float64) *float64 { return &f }

func testConfig() *campus.Config {
	return &campus.Config{
		Latitude:       12.9000,
		Longitude:      77.6000,
		AllowedRadiusM: 200,
		CampusIP:       "103.44.12.9",
		CampusIPRange:  "103.44.",
		GPSEnabled:     true,
		WifiEnabled:    true,
	}
}

func testSession(gps, wifi bool, expiresAt time.Time) session.Session {
	return session.Session{
		ID:           "s1",
		Status:       session.StatusActive,
		GPSRequired:  gps,
		WifiRequired: wifi,
		ExpiresAt:    expiresAt,
	}
}

func TestEvaluateHappyPathGPS(t *testing.T) {
	now := time.Now().UTC()
	sess := testSession(true, false, now.Add(10*time.Minute))

	out, err := Evaluate(sess, Claim{
		Latitude:  floatPtr(12.9001),
		Longitude: floatPtr(77.6001),
		IP:        UnknownIP,
	}, testConfig(), now)

	require.NoError(t, err)
	// wifi not required counts as satisfied, so both checks pass.
	assert.Equal(t, TypeBoth, out.Type)
	assert.True(t, out.GPSSatisfied)
	assert.True(t, out.WifiSatisfied)
}

func TestEvaluateORPolicy(t *testing.T) {
	now := time.Now().UTC()
	sess := testSession(true, true, now.Add(10*time.Minute))
	cfg := testConfig()

	// Inside the radius, non-matching IP: accepted as gps.
	out, err := Evaluate(sess, Claim{
		Latitude:  floatPtr(12.9001),
		Longitude: floatPtr(77.6001),
		IP:        "8.8.8.8",
	}, cfg, now)
	require.NoError(t, err)
	assert.Equal(t, TypeGPS, out.Type)

	// Matching IP, outside the radius: accepted as wifi.
	out, err = Evaluate(sess, Claim{
		Latitude:  floatPtr(13.1000),
		Longitude: floatPtr(77.9000),
		IP:        "103.44.12.9",
	}, cfg, now)
	require.NoError(t, err)
	assert.Equal(t, TypeWifi, out.Type)

	// Both inside and matching: both.
	out, err = Evaluate(sess, Claim{
		Latitude:  floatPtr(12.9001),
		Longitude: floatPtr(77.6001),
		IP:        "103.44.12.9",
	}, cfg, now)
	require.NoError(t, err)
	assert.Equal(t, TypeBoth, out.Type)

	// Failing both: rejected with both booleans reported.
	_, err = Evaluate(sess, Claim{
		Latitude:  floatPtr(13.1000),
		Longitude: floatPtr(77.9000),
		IP:        "8.8.8.8",
	}, cfg, now)
	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.False(t, failed.GPSSatisfied)
	assert.False(t, failed.WifiSatisfied)
}

func TestEvaluateIPPrefixMatch(t *testing.T) {
	now := time.Now().UTC()
	sess := testSession(false, true, now.Add(10*time.Minute))

	out, err := Evaluate(sess, Claim{IP: "103.44.200.17"}, testConfig(), now)
	require.NoError(t, err)
	assert.Equal(t, TypeBoth, out.Type)
	assert.True(t, out.WifiSatisfied)
}

func TestEvaluateUnknownIPFailsWifi(t *testing.T) {
	now := time.Now().UTC()
	sess := testSession(true, true, now.Add(10*time.Minute))

	// Unknown IP and containing coordinates outside the radius.
	_, err := Evaluate(sess, Claim{
		Latitude:  floatPtr(13.1000),
		Longitude: floatPtr(77.9000),
		IP:        UnknownIP,
	}, testConfig(), now)
	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.False(t, failed.WifiSatisfied)
}

func TestEvaluateMissingCoordinatesFailGPS(t *testing.T) {
	now := time.Now().UTC()
	sess := testSession(true, true, now.Add(10*time.Minute))

	_, err := Evaluate(sess, Claim{IP: "8.8.8.8"}, testConfig(), now)
	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.False(t, failed.GPSSatisfied)
}

func TestEvaluateMissingConfigFailsRequiredChecks(t *testing.T) {
	now := time.Now().UTC()
	sess := testSession(true, true, now.Add(10*time.Minute))

	_, err := Evaluate(sess, Claim{
		Latitude:  floatPtr(12.9001),
		Longitude: floatPtr(77.6001),
		IP:        "103.44.12.9",
	}, nil, now)
	var failed *FailedError
	require.ErrorAs(t, err, &failed)
}

func TestEvaluateRequirementOffIsAlwaysSatisfiable(t *testing.T) {
	// A session with gps not required is unconditionally satisfiable even
	// when the required wifi check fails. Known permissive behavior.
	now := time.Now().UTC()
	sess := testSession(false, true, now.Add(10*time.Minute))

	out, err := Evaluate(sess, Claim{IP: "8.8.8.8"}, testConfig(), now)
	require.NoError(t, err)
	assert.Equal(t, TypeGPS, out.Type)
	assert.True(t, out.GPSSatisfied)
	assert.False(t, out.WifiSatisfied)
}

func TestEvaluateExpiryBoundary(t *testing.T) {
	expires := time.Date(2026, 3, 2, 9, 10, 0, 0, time.UTC)
	sess := testSession(false, false, expires)
	claim := Claim{IP: UnknownIP}

	// Exactly at expiry is still inside the window.
	_, err := Evaluate(sess, claim, testConfig(), expires)
	require.NoError(t, err)

	// One millisecond past expiry is rejected even though the stored
	// status still says active.
	_, err = Evaluate(sess, claim, testConfig(), expires.Add(time.Millisecond))
	assert.True(t, errors.Is(err, ErrSessionClosed))
}

func TestEvaluateClosedSession(t *testing.T) {
	now := time.Now().UTC()
	sess := testSession(false, false, now.Add(10*time.Minute))
	sess.Status = session.StatusClosed

	_, err := Evaluate(sess, Claim{IP: UnknownIP}, testConfig(), now)
	assert.True(t, errors.Is(err, ErrSessionClosed))
}

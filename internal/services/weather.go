package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
)

const openMeteoBaseURL = "https://api.open-meteo.com/v1/forecast"

// WeatherService fetches current conditions from Open-Meteo. No API key
// is required.
type WeatherService struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

func NewWeatherService(logger *log.Logger) *WeatherService {
	return &WeatherService{
		baseURL: openMeteoBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

type openMeteoResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
		WindSpeed   float64 `json:"wind_speed_10m"`
	} `json:"current"`
}

// Summary returns a one-line description of current conditions at the
// coordinates, "4°C, light rain", for the script prompt.
func (s *WeatherService) Summary(ctx context.Context, lat, lon float64) (string, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	params.Set("current", "temperature_2m,weather_code,wind_speed_10m")

	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather API error (%d): %s", resp.StatusCode, string(body))
	}

	var parsed openMeteoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	summary := fmt.Sprintf("%.0f°C, %s", parsed.Current.Temperature, describeWeatherCode(parsed.Current.WeatherCode))
	s.logger.Debug("weather fetched", "lat", lat, "lon", lon, "summary", summary)
	return summary, nil
}

// describeWeatherCode maps WMO weather interpretation codes to short
// spoken descriptions.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "foggy"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorm"
	default:
		return "mixed conditions"
	}
}

package realtime

import "rfid-fare-gateway/internal/core/domain"

// Message types on the wire.
const (
	TypeDeviceRegister    = "device:register"
	TypeDeviceRegistered  = "device:registered"
	TypeDashboardRegister = "dashboard:register"
	TypeDeviceStatus      = "device:status"
	TypeTap               = "rfid:tap"
	TypeTapResult         = "rfid:result"
	TypeScanFound         = "scan:found"
	TypeScanError         = "scan:error"
	TypeScanMode          = "scan:mode"
	TypeFareSettled       = "fare:settled"
	TypeError             = "error"
)

// Envelope is one frame: {"type": ..., "data": {...}}.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type deviceRegisterData struct {
	DeviceKey string `json:"deviceKey"`
}

type tapData struct {
	UID string `json:"uid"`
}

type scanModeData struct {
	Enabled bool `json:"enabled"`
}

type registeredData struct {
	Success bool `json:"success"`
}

type deviceStatusData struct {
	Connected bool `json:"connected"`
}

type tapResultData struct {
	Status domain.TapStatus `json:"status"`
}

type passengerData struct {
	Name          string `json:"name"`
	WalletBalance int64  `json:"wallet_balance"`
	RFIDLinked    bool   `json:"rfid_linked"`
}

type scanFoundData struct {
	UID       string        `json:"uid"`
	Passenger passengerData `json:"passenger"`
}

type scanErrorData struct {
	UID   string `json:"uid"`
	Error string `json:"error"`
}

type fareSettledData struct {
	UID           string            `json:"uid"`
	PassengerName string            `json:"passenger_name"`
	FareDeducted  int64             `json:"fare_deducted"`
	NewBalance    int64             `json:"new_balance"`
	Stats         *domain.FareStats `json:"stats,omitempty"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func deviceStatus(connected bool) Envelope {
	return Envelope{Type: TypeDeviceStatus, Data: deviceStatusData{Connected: connected}}
}

func tapResult(status domain.TapStatus) Envelope {
	return Envelope{Type: TypeTapResult, Data: tapResultData{Status: status}}
}

func errorFrame(code, message string) Envelope {
	return Envelope{Type: TypeError, Data: errorData{Code: code, Message: message}}
}

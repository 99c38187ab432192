package adapters

import (
	"context"
	"net/url"
	"runtime"
)

// Device and application parameter names sent with session starts and offline batches.
const (
	ParamScreenWidth         = "screenWidth"
	ParamScreenHeight        = "screenHeight"
	ParamActivityWidth       = "activityWidth"
	ParamActivityHeight      = "activityHeight"
	ParamLanguage            = "lang"
	ParamSIMOperator         = "simOperator"
	ParamSIMCountryISO       = "simOpCountry"
	ParamNetworkOperatorName = "networkOpName"
	ParamConnectionType      = "connType"
	ParamBrand               = "brand"
	ParamModel               = "model"
	ParamOSType              = "osType"
	ParamOSVersion           = "osVer"
	ParamSDKVersion          = "curioSdkVer"
	ParamAppVersion          = "appVer"
)

// StaticFeatureSet is the device and application metadata, read-only after bootstrap.
type StaticFeatureSet struct {
	VisitorCode         string
	ScreenWidth         string
	ScreenHeight        string
	ActivityWidth       string
	ActivityHeight      string
	Language            string
	SIMOperator         string
	SIMCountryISO       string
	NetworkOperatorName string
	ConnectionType      string
	Brand               string
	Model               string
	OSType              string
	OSVersion           string
	SDKVersion          string
	AppVersion          string
}

// DeviceValues returns the device fields in form encoding. Empty fields are sent as
// empty values, as the collector expects every key.
func (f StaticFeatureSet) DeviceValues() url.Values {
	return url.Values{
		ParamScreenWidth:         {f.ScreenWidth},
		ParamScreenHeight:        {f.ScreenHeight},
		ParamActivityWidth:       {f.ActivityWidth},
		ParamActivityHeight:      {f.ActivityHeight},
		ParamLanguage:            {f.Language},
		ParamSIMOperator:         {f.SIMOperator},
		ParamSIMCountryISO:       {f.SIMCountryISO},
		ParamNetworkOperatorName: {f.NetworkOperatorName},
		ParamConnectionType:      {f.ConnectionType},
		ParamBrand:               {f.Brand},
		ParamModel:               {f.Model},
		ParamOSType:              {f.OSType},
		ParamOSVersion:           {f.OSVersion},
		ParamSDKVersion:          {f.SDKVersion},
		ParamAppVersion:          {f.AppVersion},
	}
}

// FeatureProvider loads the static feature set. It is called once, off the
// caller's path, during client bootstrap.
type FeatureProvider interface {
	Features(ctx context.Context) (StaticFeatureSet, error)
}

// RuntimeFeatureProvider fills the feature set from the Go runtime and a
// visitor code store.
type RuntimeFeatureProvider struct {
	Visitors   *VisitorCodeStore
	SDKVersion string
	AppVersion string
	Language   string
}

// Ensure RuntimeFeatureProvider implements FeatureProvider interface
var _ FeatureProvider = (*RuntimeFeatureProvider)(nil)

func (r *RuntimeFeatureProvider) Features(ctx context.Context) (StaticFeatureSet, error) {
	features := StaticFeatureSet{
		OSType:     runtime.GOOS,
		Model:      runtime.GOARCH,
		OSVersion:  runtime.Version(),
		SDKVersion: r.SDKVersion,
		AppVersion: r.AppVersion,
		Language:   r.Language,
	}
	if r.Visitors != nil {
		code, err := r.Visitors.Code(ctx)
		if err != nil {
			return StaticFeatureSet{}, err
		}
		features.VisitorCode = code
	}
	return features, nil
}

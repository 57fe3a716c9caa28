package tg

import (
	"github.com/zelenin/go-tdlib/client"
)

// ProxyConfig: SOCKS5-прокси для всех сессий
type ProxyConfig struct {
	Enabled  bool
	Server   string
	Port     int32
	Username string
	Password string
}

// DeviceConfig: то, чем клиент представляется серверу
type DeviceConfig struct {
	DeviceModel        string
	SystemVersion      string
	ApplicationVersion string
	LangCode           string
}

func (d DeviceConfig) withDefaults() DeviceConfig {
	if d.LangCode == "" {
		d.LangCode = "en"
	}
	if d.SystemVersion == "" {
		d.SystemVersion = "Windows 10"
	}
	if d.ApplicationVersion == "" {
		d.ApplicationVersion = "2.0"
	}
	if d.DeviceModel == "" {
		d.DeviceModel = "Desktop"
	}
	return d
}

// tdParams: параметры TDLib для одного рабочего каталога.
// Базы сообщений и файлов выключены: blob должен оставаться маленьким.
func tdParams(apiID int32, apiHash string, device DeviceConfig, dbDir, filesDir string) *client.SetTdlibParametersRequest {
	d := device.withDefaults()
	return &client.SetTdlibParametersRequest{
		UseTestDc:           false,
		DatabaseDirectory:   dbDir,
		FilesDirectory:      filesDir,
		UseFileDatabase:     false,
		UseChatInfoDatabase: false,
		UseMessageDatabase:  false,
		UseSecretChats:      false,
		ApiId:               apiID,
		ApiHash:             apiHash,
		SystemLanguageCode:  d.LangCode,
		DeviceModel:         d.DeviceModel,
		SystemVersion:       d.SystemVersion,
		ApplicationVersion:  d.ApplicationVersion,
	}
}

func proxyOptions(p *ProxyConfig) []client.Option {
	if p == nil || !p.Enabled {
		return nil
	}
	return []client.Option{client.WithProxy(&client.AddProxyRequest{
		Server: p.Server,
		Port:   p.Port,
		Enable: true,
		Type: &client.ProxyTypeSocks5{
			Username: p.Username,
			Password: p.Password,
		},
	})}
}

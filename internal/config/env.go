package config

import (
	"os"
	"strconv"
)

// ApplyEnv overrides cfg with the process environment. Setting a channel's
// credential variable also enables that channel.
func ApplyEnv(cfg *Config) {
	setString(&cfg.General.LogLevel, "LOG_LEVEL")
	setString(&cfg.General.DefaultLanguage, "DEFAULT_LANGUAGE")
	setInt(&cfg.Server.Port, "PORT")

	wa := &cfg.Channels.WhatsApp
	setString(&wa.APIURL, "WHATSAPP_API_URL")
	setString(&wa.PhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")
	setString(&wa.VerifyToken, "WHATSAPP_WEBHOOK_VERIFY_TOKEN")
	setString(&wa.AppSecret, "WHATSAPP_APP_SECRET")
	if setString(&wa.AccessToken, "WHATSAPP_ACCESS_TOKEN") {
		wa.Enabled = true
	}

	tw := &cfg.Channels.Twilio
	setString(&tw.AuthToken, "TWILIO_AUTH_TOKEN")
	setString(&tw.WhatsAppNumber, "TWILIO_WHATSAPP_NUMBER")
	if setString(&tw.AccountSID, "TWILIO_ACCOUNT_SID") {
		tw.Enabled = true
	}

	if setString(&cfg.Channels.Telegram.Token, "TELEGRAM_BOT_TOKEN") {
		cfg.Channels.Telegram.Enabled = true
	}

	setString(&cfg.Transcription.Google.CredentialsPath, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&cfg.Transcription.Google.APIKey, "GOOGLE_SPEECH_API_KEY")
	setString(&cfg.Transcription.Whisper.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Transcription.Backend, "TRANSCRIPTION_BACKEND")

	if setString(&cfg.Events.URL, "AMQP_URL") {
		cfg.Events.Enabled = true
	}
	if setString(&cfg.History.DBPath, "HISTORY_DB_PATH") {
		cfg.History.Enabled = true
	}
}

func setString(dst *string, key string) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return false
	}
	*dst = v
	return true
}

func setInt(dst *int, key string) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return false
	}
	*dst = n
	return true
}

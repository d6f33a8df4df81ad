package env

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	TelegramBotToken string
	TrendingChannel  string
	SystemLogChatID  int64

	SuiWSSURL         string
	SuiRPCURL         string
	SuivisionAPIKey   string
	SuivisionBaseURL  string
	LaunchpadPackages []string

	BoostWalletAddress string

	RabbitMQURL  string
	BuyFeedQueue string

	Port string

	DATABASE_URL string

	PGHOST     string
	PGPORT     string
	PGUSER     string
	PGPASSWORD string
	PGDATABASE string
)

func loadEnvVariable(key string, isRequired bool) string {
	value := os.Getenv(key)
	if isRequired && value == "" {
		log.Fatalf("FATAL: Environment variable %s is required but not set.", key)
	}
	isHidden := key == "TELEGRAM_BOT_TOKEN" || key == "SUIVISION_API_KEY" || key == "PGPASSWORD" || key == "DATABASE_URL" || key == "RABBITMQ_URL"
	if value == "" {
		if !isRequired {
			log.Printf("INFO: Environment variable %s is not set.", key)
		}
	} else if isHidden {
		log.Printf("INFO: Loaded %s (value hidden)", key)
	} else {
		log.Printf("INFO: Loaded %s = %s", key, value)
	}
	return value
}

func loadInt64Env(key string, required bool) int64 {
	strValue := loadEnvVariable(key, required)
	if strValue == "" {
		if !required {
			log.Printf("INFO: Optional int64 environment variable %s is missing, defaulting to 0.", key)
			return 0
		}
		log.Fatalf("FATAL: Required int64 environment variable %s is missing after load.", key)
		return 0
	}
	id, err := strconv.ParseInt(strValue, 10, 64)
	if err != nil {
		log.Fatalf("FATAL: Failed to parse int64 environment variable %s='%s': %v", key, strValue, err)
	}
	return id
}

func loadListEnv(key string, required bool) []string {
	raw := loadEnvVariable(key, required)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func LoadEnv() error {
	err := godotenv.Load()
	if err != nil {
		log.Println("INFO: .env file not found or error loading, relying on system environment variables.")
	} else {
		log.Println("INFO: .env file loaded successfully.")
	}

	TelegramBotToken = loadEnvVariable("TELEGRAM_BOT_TOKEN", true)
	TrendingChannel = loadEnvVariable("TRENDING_CHANNEL", false)
	if TrendingChannel == "" {
		TrendingChannel = "@moonbagstrending"
		log.Printf("INFO: TRENDING_CHANNEL not set, defaulting to %s", TrendingChannel)
	}

	SystemLogChatID = loadInt64Env("SYSTEM_LOG_CHAT_ID", false)
	if SystemLogChatID == 0 {
		log.Println("WARN: SYSTEM_LOG_CHAT_ID is not set. WARN/ERROR logs will not be mirrored to Telegram.")
	}

	SuiWSSURL = loadEnvVariable("SUI_WSS_URL", true)
	SuiRPCURL = loadEnvVariable("SUI_RPC_URL", true)
	SuivisionAPIKey = loadEnvVariable("SUIVISION_API_KEY", false)
	SuivisionBaseURL = loadEnvVariable("SUIVISION_BASE_URL", false)
	if SuivisionBaseURL == "" {
		SuivisionBaseURL = "https://api.suivision.xyz"
		log.Printf("INFO: SUIVISION_BASE_URL not set, defaulting to %s", SuivisionBaseURL)
	}

	LaunchpadPackages = loadListEnv("LAUNCHPAD_PACKAGES", true)
	if len(LaunchpadPackages) == 0 {
		log.Println("WARN: LAUNCHPAD_PACKAGES is empty. No contracts will be monitored for buys.")
	}

	BoostWalletAddress = loadEnvVariable("BOOST_WALLET_ADDRESS", false)
	if BoostWalletAddress == "" {
		log.Println("WARN: BOOST_WALLET_ADDRESS is not set. Boost purchases cannot be verified.")
	}

	RabbitMQURL = loadEnvVariable("RABBITMQ_URL", false)
	BuyFeedQueue = loadEnvVariable("BUY_FEED_QUEUE", false)
	if RabbitMQURL != "" && BuyFeedQueue == "" {
		BuyFeedQueue = "buybot_buy_feed"
		log.Printf("INFO: BUY_FEED_QUEUE not set, defaulting to %s", BuyFeedQueue)
	}

	Port = loadEnvVariable("PORT", false)
	if Port == "" {
		Port = "8080"
		log.Printf("INFO: PORT not set, defaulting to %s", Port)
	}

	DATABASE_URL = loadEnvVariable("DATABASE_URL", false)

	PGHOST = loadEnvVariable("PGHOST", false)
	PGPORT = loadEnvVariable("PGPORT", false)
	PGUSER = loadEnvVariable("PGUSER", false)
	PGPASSWORD = loadEnvVariable("PGPASSWORD", false)
	PGDATABASE = loadEnvVariable("PGDATABASE", false)

	if DATABASE_URL == "" {
		log.Println("WARN: DATABASE_URL is not set. Connection logic will rely on PG* variables.")
	}

	log.Println("INFO: Environment variables loading process complete.")
	return nil
}

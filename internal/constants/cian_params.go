package constants

// API поиска коммерческой недвижимости
const (
	DefaultCianAPIURL = "https://api.cian.ru/commercial-search-offers/desktop/v1/offers/get-offers/"
	DefaultCianOrigin = "https://perm.cian.ru"
)

// Параметры запроса по умолчанию
const (
	CianOfferTypeCommercialRent = "commercialrent"
	CianEngineVersion           = 2

	DefaultCianRegionID      = 4927    // Пермь
	DefaultCianPublishPeriod = 2592000 // 30 дней в секундах
)

// Типы офисов: 1 - офис, 3 - свободное назначение
var DefaultCianOfficeTypes = []int{1, 3}

const CianUserAgent = "cian-monitor-service/1.0 (+commercial listings monitor)"

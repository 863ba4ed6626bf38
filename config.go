package sequencing_run_gateway

type Config struct {
	WarehouseHost    string  `docopt:"--whhost"`
	WarehousePort    int     `docopt:"--whport"`
	WarehouseToken   string  `docopt:"--whtoken"`
	WarehousePath    string  `docopt:"--whpath"`
	MetricsTable     string  `docopt:"--metricstable"`
	MomUrl           string  `docopt:"--momurl"`
	MomCert          string  `docopt:"--momcert"`
	MomKey           string  `docopt:"--momkey"`
	MomCons          string  `docopt:"--momcons"`
	MomPw            string  `docopt:"--mompw"`
	MomSub           string  `docopt:"--momsub"`
	MomRrf           string  `docopt:"--momrrf"`
	MomMf            string  `docopt:"--mommf"`
	NanuqServer      string  `docopt:"--nanuqserver"`
	NanuqCreds       string  `docopt:"--nanuqcreds"`
	PhenotipsServer  string  `docopt:"--ptserver"`
	PhenotipsAuth    string  `docopt:"--ptauth"`
	PhenotipsSecret  string  `docopt:"--ptsecret"`
	BaseSpaceServer  string  `docopt:"--bsserver"`
	BaseSpaceToken   string  `docopt:"--bstoken"`
	EmedgeneServer   string  `docopt:"--emgserver"`
	EmedgeneUser     string  `docopt:"--emguser"`
	EmedgenePassword string  `docopt:"--emgpw"`
	QlinServer       string  `docopt:"--qlinserver"`
	QlinEmail        string  `docopt:"--qlinemail"`
	QlinPassword     string  `docopt:"--qlinpw"`
	AWSLoginScript   string  `docopt:"--awslogin"`
	AWSProfile       string  `docopt:"--awsprofile"`
	AWSRegion        string  `docopt:"--awsregion"`
	AWSSessionSecs   float64 `docopt:"--awssession"`
	CaseBucket       string  `docopt:"--casebucket"`
	RunsDir          string  `docopt:"--runsdir"`
	RunSentinel      string  `docopt:"--sentinel"`
	TracerHost       string  `docopt:"--tracerhost"`
	TracerPort       int     `docopt:"--tracerport"`
	ServiceName      string  `docopt:"--servicename"`
	WebhookURL       string  `docopt:"--webhookurl"`
	ValidateOnly     bool    `docopt:"--validate-only"`
}

var TestConfig = Config{
	WarehouseHost:    "",
	WarehousePort:    0,
	WarehouseToken:   "",
	WarehousePath:    "",
	MetricsTable:     "",
	MomUrl:           "",
	MomCert:          "",
	MomKey:           "",
	MomCons:          "",
	MomPw:            "",
	MomSub:           "",
	MomRrf:           "",
	MomMf:            "",
	NanuqServer:      "",
	NanuqCreds:       "",
	PhenotipsServer:  "",
	PhenotipsAuth:    "",
	PhenotipsSecret:  "",
	BaseSpaceServer:  "",
	BaseSpaceToken:   "",
	EmedgeneServer:   "",
	EmedgeneUser:     "",
	EmedgenePassword: "",
	QlinServer:       "",
	QlinEmail:        "",
	QlinPassword:     "",
	AWSLoginScript:   "",
	AWSProfile:       "",
	AWSRegion:        "",
	AWSSessionSecs:   0,
	CaseBucket:       "",
	RunsDir:          "",
	RunSentinel:      "",
	TracerHost:       "",
	TracerPort:       0,
	ServiceName:      "",
	WebhookURL:       "",
	ValidateOnly:     false,
}

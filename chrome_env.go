package scraper

import (
	"os"

	"github.com/chromedp/chromedp"
)

// ContainerEnv forces the container switches outside CI, e.g. when the scraper runs in
// a docker image as root.
const ContainerEnv = "SOCIALSCRAPER_CONTAINER"

func inContainer() bool {
	return os.Getenv("CI") == "true" || os.Getenv(ContainerEnv) != ""
}

// containerChromeOptions returns the switches Chrome needs where it cannot sandbox
// itself and /dev/shm is tiny.
func containerChromeOptions() []chromedp.ExecAllocatorOption {
	if !inContainer() {
		return nil
	}
	return []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.NoFirstRun,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
	}
}

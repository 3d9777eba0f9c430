package autoload

// Import all middleware subpackages for side-effect registration.
import (
	_ "lmbridge/middlewares/localcache"
	_ "lmbridge/middlewares/tokenbudget"
)

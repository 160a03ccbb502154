package luxsession

// Version is the release of the luxsession module.
const Version = "0.3.0"

/*
Package manager owns labdeck's persisted records on behalf of users:
plugins, service instances and alert thresholds.

Every call is scoped by the acting user id. Records belonging to another
user are reported as storage.ErrNotFound, never as a permission error, so
ids of other users' records are not confirmed to exist.

# Plugin lifecycle

	InstallPlugin ──► installed, disabled ──► EnablePlugin ──► enabled
	                                     ◄── DisablePlugin ◄──
	UninstallPlugin (any state) ──► record deleted

Each transition is written to the store first and then pushed to the owner
as a plugin:status event keyed by the plugin id, so only connections that
subscribed to that plugin see it. The Message field names the transition
("installed", "enabled", "disabled", "uninstalled").

# Instances

AddInstance validates the URL (http, https or tcp with a host) and seals
the password with the security package before the record is written. The
plaintext never reaches the store. RemoveInstance also drops the
instance's alert thresholds.

# Alert thresholds

SetAlertThreshold keeps at most one threshold per instance and metric;
setting a metric again replaces the previous value. The poller package
evaluates them.

Validation failures wrap ErrInvalidArgument:

	_, err := mgr.InstallPlugin(userID, "ftp", "")
	errors.Is(err, manager.ErrInvalidArgument) // true
*/
package manager
